// Package token requests short-lived session credentials from the issuer
// service.
//
// The issuer is the only component holding long-lived API keys. The session
// manager asks it for an ephemeral credential plus the personalised tutoring
// prompt before every connection attempt; nothing durable ever reaches the
// client side of the transport.
package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Request identifies the learner session asking for a credential.
type Request struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`

	// PersonalizationContext carries free-form learner context (level, goals,
	// recurring mistakes) folded into the generated instructions.
	PersonalizationContext string `json:"personalizationContext,omitempty"`
}

// Grant is the issuer's answer: an ephemeral credential, the model to
// connect to, and the session instructions.
type Grant struct {
	Credential   string `json:"credential"`
	Model        string `json:"modelIdentifier"`
	Instructions string `json:"instructions"`

	// ExpiresAt is when the credential stops being accepted. The session does
	// not refresh; a session outliving its credential ends at the transport.
	ExpiresAt time.Time `json:"expiresAt,omitzero"`
}

// Issuer is the client-side contract for credential issuance.
type Issuer interface {
	Issue(ctx context.Context, req Request) (Grant, error)
}

// Option is a functional option for configuring a [Client].
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// Client talks to the issuer over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ Issuer = (*Client)(nil)

// NewClient creates an issuer client for the given base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Issue requests a credential grant. Any non-2xx response is an error; the
// caller treats it as a setup failure and aborts the session start.
func (c *Client) Issue(ctx context.Context, req Request) (Grant, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Grant{}, fmt.Errorf("token: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/session-tokens", bytes.NewReader(body))
	if err != nil {
		return Grant{}, fmt.Errorf("token: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Grant{}, fmt.Errorf("token: issue credential: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Grant{}, fmt.Errorf("token: issuer returned %d: %s", resp.StatusCode, msg)
	}

	var grant Grant
	if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		return Grant{}, fmt.Errorf("token: decode grant: %w", err)
	}
	if grant.Credential == "" {
		return Grant{}, fmt.Errorf("token: issuer returned an empty credential")
	}
	return grant, nil
}
