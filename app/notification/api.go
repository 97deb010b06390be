package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"strings"
	"time"
)

type APIConfig struct {
	URL         string
	Token       string
	FromAddress string
	FromName    string
	Timeout     time.Duration
}

// APITransport posts messages to a transactional email HTTP API using the
// ZeptoMail request shape.
type APITransport struct {
	cfg    APIConfig
	client *http.Client
}

func NewAPITransport(cfg APIConfig) *APITransport {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &APITransport{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type apiAddress struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

type apiRecipient struct {
	EmailAddress apiAddress `json:"email_address"`
}

type apiRequest struct {
	From     apiAddress     `json:"from"`
	To       []apiRecipient `json:"to"`
	Subject  string         `json:"subject"`
	HTMLBody string         `json:"htmlbody"`
}

func (t *APITransport) Deliver(ctx context.Context, msg Message) error {
	if strings.TrimSpace(t.cfg.URL) == "" {
		return fmt.Errorf("%w: mail api url is not configured", ErrPermanent)
	}
	if _, err := mail.ParseAddress(msg.To); err != nil {
		return fmt.Errorf("%w: invalid recipient %q: %v", ErrPermanent, msg.To, err)
	}

	body, err := json.Marshal(apiRequest{
		From:     apiAddress{Address: t.cfg.FromAddress, Name: t.cfg.FromName},
		To:       []apiRecipient{{EmailAddress: apiAddress{Address: msg.To}}},
		Subject:  msg.Subject,
		HTMLBody: msg.HTMLBody,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if t.cfg.Token != "" {
		req.Header.Set("Authorization", "Zoho-enczapikey "+t.cfg.Token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &HTTPStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
}
