package notification

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/shopspring/decimal"
)

var subjects = map[Kind]string{
	KindReceipt:             "Your payment receipt",
	KindBookingConfirmation: "Your booking is confirmed",
	KindRefundNotice:        "Your refund has been issued",
	KindAdminAlert:          "New payment received",
}

const layout = `{{define "layout"}}<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222222;">
<p>{{if .RecipientName}}Hi {{.RecipientName}},{{else}}Hello,{{end}}</p>
{{template "body" .}}
<p style="color: #888888; font-size: 12px;">Reference {{.IntentID}}</p>
</body>
</html>{{end}}`

var bodies = map[Kind]string{
	KindReceipt: `{{define "body"}}<p>We received your payment of <strong>{{amount .AmountMinor .Currency}}</strong>{{if .CardLast4}} on your {{.CardBrand}} card ending {{.CardLast4}}{{end}}.</p>
<p>Payment id: {{.PaymentID}}</p>{{end}}`,
	KindBookingConfirmation: `{{define "body"}}<p>Your booking #{{.OwnerID}} is confirmed. We look forward to seeing you.</p>
<p>Amount paid: {{amount .AmountMinor .Currency}}</p>{{end}}`,
	KindRefundNotice: `{{define "body"}}<p>We have refunded <strong>{{amount .RefundAmountMinor .Currency}}</strong> for your {{.OwnerKind}} #{{.OwnerID}}.</p>
{{if .RefundReason}}<p>Reason: {{.RefundReason}}</p>{{end}}
<p>Refunds usually reach your account within 5 to 10 business days.</p>{{end}}`,
	KindAdminAlert: `{{define "body"}}<p>Payment {{.PaymentID}} succeeded for {{.OwnerKind}} #{{.OwnerID}}.</p>
<p>Amount: {{amount .AmountMinor .Currency}}{{if .CardLast4}} ({{.CardBrand}} {{.CardLast4}}){{end}}</p>{{end}}`,
}

// Currencies without a minor unit.
var zeroDecimalCurrencies = map[string]bool{
	"JPY": true,
	"KRW": true,
	"VND": true,
	"CLP": true,
}

func FormatAmount(minor int64, currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	exp := int32(-2)
	if zeroDecimalCurrencies[currency] {
		exp = 0
	}
	value := decimal.New(minor, exp).StringFixed(-exp)
	if currency == "" {
		return value
	}
	return value + " " + currency
}

type Renderer struct {
	templates map[Kind]*template.Template
}

func NewRenderer() (*Renderer, error) {
	funcs := template.FuncMap{"amount": FormatAmount}
	templates := make(map[Kind]*template.Template, len(bodies))
	for kind, body := range bodies {
		tpl, err := template.New(string(kind)).Funcs(funcs).Parse(layout)
		if err != nil {
			return nil, fmt.Errorf("parse layout for %s: %w", kind, err)
		}
		if _, err := tpl.Parse(body); err != nil {
			return nil, fmt.Errorf("parse template %s: %w", kind, err)
		}
		templates[kind] = tpl
	}
	return &Renderer{templates: templates}, nil
}

func MustNewRenderer() *Renderer {
	r, err := NewRenderer()
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Renderer) Render(n Notification) (Message, error) {
	tpl, ok := r.templates[n.Kind]
	if !ok {
		return Message{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidNotification, n.Kind)
	}

	var buf bytes.Buffer
	if err := tpl.ExecuteTemplate(&buf, "layout", n.Data); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", n.Kind, err)
	}

	return Message{
		To:       n.To,
		Subject:  subjects[n.Kind],
		HTMLBody: buf.String(),
	}, nil
}
