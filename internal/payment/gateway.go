// Package payment talks to the external card-payment gateway and drives
// subscriptions through the settlement state machine.  Gateway failures
// are absorbed into a PENDING outcome rather than propagated as hard
// errors, because payment confirmation must be safely retriable.
package payment

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "strings"
    "time"

    "github.com/shopspring/decimal"
)

// Status is the tri-state outcome of a reconciliation or checkout fetch.
// PAID and FAILED are terminal per checkout; PENDING is always safe to
// retry.
type Status string

const (
    StatusPaid    Status = "PAID"
    StatusFailed  Status = "FAILED"
    StatusPending Status = "PENDING"
)

// ErrGatewayUnavailable wraps network failures and non-2xx gateway
// responses.  Callers treat it as transient.
var ErrGatewayUnavailable = errors.New("gateway unavailable")

// CheckoutRequest is the body of POST /checkouts.
type CheckoutRequest struct {
    Reference   string          `json:"reference"`
    Amount      decimal.Decimal `json:"amount"`
    Currency    string          `json:"currency"`
    Destination string          `json:"destination"`
}

// GatewayTransaction is one line item of a checkout as reported by the
// gateway.
type GatewayTransaction struct {
    ID     string `json:"id"`
    Status string `json:"status"`
}

// CheckoutState is the authoritative state of a checkout as returned by
// GET /checkouts/{id}.
type CheckoutState struct {
    ID           string               `json:"id"`
    Status       string               `json:"status"`
    Transactions []GatewayTransaction `json:"transactions"`
}

// Outcome maps the gateway's raw status to the tri-state.  A checkout
// counts as paid when the gateway says so explicitly or when any of its
// line items is marked successful.
func (c *CheckoutState) Outcome() Status {
    switch strings.ToUpper(c.Status) {
    case "PAID":
        return StatusPaid
    case "FAILED", "CANCELED", "CANCELLED", "EXPIRED":
        return StatusFailed
    }
    if c.SuccessfulTransactionID() != "" {
        return StatusPaid
    }
    return StatusPending
}

// SuccessfulTransactionID returns the id of the first successful line
// item, or "" when none succeeded yet.
func (c *CheckoutState) SuccessfulTransactionID() string {
    for _, t := range c.Transactions {
        switch strings.ToUpper(t.Status) {
        case "SUCCESS", "SUCCESSFUL", "PAID":
            return t.ID
        }
    }
    return ""
}

// Gateway is the engine's view of the external payment provider.
type Gateway interface {
    CreateCheckout(ctx context.Context, req CheckoutRequest) (string, error)
    FetchCheckout(ctx context.Context, id string) (*CheckoutState, error)
    SubmitToken(ctx context.Context, id, token string) error
}

// ClientConfig configures the HTTP gateway client.
type ClientConfig struct {
    BaseURL      string
    ClientID     string
    ClientSecret string
    Destination  string
    Timeout      time.Duration
    TokenMargin  time.Duration
}

// Client implements Gateway over the gateway's HTTP contract with a
// bounded request timeout and a cached OAuth access token.
type Client struct {
    cfg    ClientConfig
    httpc  *http.Client
    tokens *TokenCache
}

// NewClient returns a gateway client.  The access token is fetched
// lazily and cached with the configured safety margin.
func NewClient(cfg ClientConfig) *Client {
    if cfg.Timeout <= 0 {
        cfg.Timeout = 10 * time.Second
    }
    c := &Client{
        cfg:   cfg,
        httpc: &http.Client{Timeout: cfg.Timeout},
    }
    c.tokens = NewTokenCache(cfg.TokenMargin, c.fetchToken)
    return c
}

// fetchToken performs the client-credentials exchange.
func (c *Client) fetchToken(ctx context.Context) (string, time.Duration, error) {
    form := url.Values{"grant_type": {"client_credentials"}}
    req, err := http.NewRequestWithContext(ctx, http.MethodPost,
        c.cfg.BaseURL+"/oauth/token", strings.NewReader(form.Encode()))
    if err != nil {
        return "", 0, err
    }
    req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
    req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
    resp, err := c.httpc.Do(req)
    if err != nil {
        return "", 0, fmt.Errorf("%w: token: %v", ErrGatewayUnavailable, err)
    }
    defer resp.Body.Close()
    if resp.StatusCode != http.StatusOK {
        return "", 0, fmt.Errorf("%w: token endpoint returned %d", ErrGatewayUnavailable, resp.StatusCode)
    }
    var body struct {
        AccessToken string `json:"access_token"`
        ExpiresIn   int64  `json:"expires_in"`
    }
    if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
        return "", 0, fmt.Errorf("%w: decode token: %v", ErrGatewayUnavailable, err)
    }
    return body.AccessToken, time.Duration(body.ExpiresIn) * time.Second, nil
}

// CreateCheckout calls POST /checkouts and returns the gateway's
// checkout id.
func (c *Client) CreateCheckout(ctx context.Context, req CheckoutRequest) (string, error) {
    if req.Destination == "" {
        req.Destination = c.cfg.Destination
    }
    var out struct {
        ID string `json:"id"`
    }
    if err := c.do(ctx, http.MethodPost, "/checkouts", req, &out, nil); err != nil {
        return "", err
    }
    if out.ID == "" {
        return "", fmt.Errorf("%w: checkout created without id", ErrGatewayUnavailable)
    }
    return out.ID, nil
}

// FetchCheckout calls GET /checkouts/{id}.
func (c *Client) FetchCheckout(ctx context.Context, id string) (*CheckoutState, error) {
    var out CheckoutState
    if err := c.do(ctx, http.MethodGet, "/checkouts/"+url.PathEscape(id), nil, &out, nil); err != nil {
        return nil, err
    }
    return &out, nil
}

// SubmitToken calls PUT /checkouts/{id} with the client's card token.
// 409 means the checkout was already processed and is treated as
// success.
func (c *Client) SubmitToken(ctx context.Context, id, token string) error {
    body := map[string]string{"token": token}
    ok409 := http.StatusConflict
    return c.do(ctx, http.MethodPut, "/checkouts/"+url.PathEscape(id), body, nil, &ok409)
}

// do performs an authenticated request, retrying once with a fresh token
// when the gateway answers 401.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}, acceptExtra *int) error {
    for attempt := 0; ; attempt++ {
        var rd io.Reader
        if in != nil {
            buf, err := json.Marshal(in)
            if err != nil {
                return err
            }
            rd = bytes.NewReader(buf)
        }
        req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, rd)
        if err != nil {
            return err
        }
        if in != nil {
            req.Header.Set("Content-Type", "application/json")
        }
        token, err := c.tokens.Get(ctx)
        if err != nil {
            return err
        }
        req.Header.Set("Authorization", "Bearer "+token)

        resp, err := c.httpc.Do(req)
        if err != nil {
            return fmt.Errorf("%w: %s %s: %v", ErrGatewayUnavailable, method, path, err)
        }
        if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
            resp.Body.Close()
            c.tokens.Invalidate()
            continue
        }
        defer resp.Body.Close()
        if acceptExtra != nil && resp.StatusCode == *acceptExtra {
            return nil
        }
        if resp.StatusCode < 200 || resp.StatusCode > 299 {
            return fmt.Errorf("%w: %s %s returned %d", ErrGatewayUnavailable, method, path, resp.StatusCode)
        }
        if out != nil {
            if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
                return fmt.Errorf("%w: decode %s %s: %v", ErrGatewayUnavailable, method, path, err)
            }
        }
        return nil
    }
}
