package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"unicode/utf8"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/vibast-solutions/ms-go-booking-payments/app/entity"
)

func TestIsDuplicateEntryError(t *testing.T) {
	dup := &mysqlDriver.MySQLError{Number: 1062, Message: "Duplicate entry 'pi_1' for key 'uq_intent_id'"}
	if !isDuplicateEntryError(fmt.Errorf("insert: %w", dup)) {
		t.Fatal("expected wrapped 1062 to be detected")
	}
	if isDuplicateEntryError(&mysqlDriver.MySQLError{Number: 1213}) {
		t.Fatal("expected deadlock error not to be treated as duplicate")
	}
	if isDuplicateEntryError(errors.New("boom")) {
		t.Fatal("expected plain error not to be treated as duplicate")
	}
}

func TestExecutorPrefersTransactionFromContext(t *testing.T) {
	e := executor{db: nil}
	tx := &sql.Tx{}
	ctx := context.WithValue(context.Background(), txContextKey{}, tx)
	if got := e.conn(ctx); got != tx {
		t.Fatalf("expected tx executor, got %#v", got)
	}
	if got := e.conn(context.Background()); got != nil {
		t.Fatalf("expected pool executor, got %#v", got)
	}
}

func TestOwnerTable(t *testing.T) {
	if table, err := ownerTable(entity.OwnerKindBooking); err != nil || table != "bookings" {
		t.Fatalf("unexpected booking table: %s %v", table, err)
	}
	if table, err := ownerTable(entity.OwnerKindQuote); err != nil || table != "guest_quotes" {
		t.Fatalf("unexpected quote table: %s %v", table, err)
	}
	if _, err := ownerTable("invoice"); !errors.Is(err, ErrUnknownOwnerKind) {
		t.Fatalf("expected ErrUnknownOwnerKind, got %v", err)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 3); got != "abc" {
		t.Fatalf("unexpected truncate result: %s", got)
	}
	if got := truncate("ab", 3); got != "ab" {
		t.Fatalf("unexpected truncate result: %s", got)
	}
}

func TestTruncateKeepsMultiByteCharactersWhole(t *testing.T) {
	// "é" and "€" are two and three bytes long.
	reason := "carte refusée €€"
	for max := 0; max <= len(reason); max++ {
		got := truncate(reason, max)
		if len(got) > max {
			t.Fatalf("max %d: result %q is %d bytes", max, got, len(got))
		}
		if !utf8.ValidString(got) {
			t.Fatalf("max %d: result %q is not valid UTF-8", max, got)
		}
	}
	if got := truncate(reason, 12); got != "carte refus" {
		t.Fatalf("unexpected truncate result: %q", got)
	}
	if got := truncate("€", 2); got != "" {
		t.Fatalf("unexpected truncate result: %q", got)
	}
}
