package cmd

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/vibast-solutions/ms-go-booking-payments/config"
)

func TestNotificationQueueWithoutRedisAddr(t *testing.T) {
	logger, hook := logtest.NewNullLogger()

	queue, closeQueue := newNotificationQueue(&config.Config{}, logger, time.Second)
	if queue != nil || closeQueue != nil {
		t.Fatal("expected no queue without REDIS_ADDR")
	}
	if entry := hook.LastEntry(); entry == nil || entry.Level != logrus.InfoLevel {
		t.Fatalf("expected info log, got %v", entry)
	}
}

func TestNotificationQueueDegradesWhenRedisUnreachable(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	cfg := &config.Config{Redis: config.RedisConfig{Addr: "127.0.0.1:1"}}

	queue, closeQueue := newNotificationQueue(cfg, logger, 200*time.Millisecond)
	if queue != nil || closeQueue != nil {
		t.Fatal("expected synchronous delivery when redis is unreachable")
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.WarnLevel {
		t.Fatalf("expected warning, got %v", entry)
	}
	if entry.Data["redis_addr"] != "127.0.0.1:1" {
		t.Fatalf("unexpected log fields %v", entry.Data)
	}
}
