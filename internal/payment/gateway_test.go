package payment

import (
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"
)

// fakeGatewayServer speaks just enough of the gateway contract for the
// client tests: the token endpoint, checkout create/fetch and the card
// token submit.
type fakeGatewayServer struct {
    t            *testing.T
    tokenCalls   int
    rejectFirst  bool
    rejectedOnce bool
    checkout     CheckoutState
    submitStatus int
}

func (f *fakeGatewayServer) handler() http.Handler {
    mux := http.NewServeMux()
    mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
        f.tokenCalls++
        if user, _, ok := r.BasicAuth(); !ok || user != "client-id" {
            w.WriteHeader(http.StatusUnauthorized)
            return
        }
        json.NewEncoder(w).Encode(map[string]interface{}{
            "access_token": "tok", "expires_in": 3600,
        })
    })
    mux.HandleFunc("/checkouts", func(w http.ResponseWriter, r *http.Request) {
        if r.Method != http.MethodPost {
            w.WriteHeader(http.StatusMethodNotAllowed)
            return
        }
        var req CheckoutRequest
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reference == "" {
            w.WriteHeader(http.StatusBadRequest)
            return
        }
        json.NewEncoder(w).Encode(map[string]string{"id": "chk_1"})
    })
    mux.HandleFunc("/checkouts/", func(w http.ResponseWriter, r *http.Request) {
        if f.rejectFirst && !f.rejectedOnce {
            f.rejectedOnce = true
            w.WriteHeader(http.StatusUnauthorized)
            return
        }
        if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
            w.WriteHeader(http.StatusUnauthorized)
            return
        }
        switch r.Method {
        case http.MethodGet:
            json.NewEncoder(w).Encode(f.checkout)
        case http.MethodPut:
            w.WriteHeader(f.submitStatus)
        default:
            w.WriteHeader(http.StatusMethodNotAllowed)
        }
    })
    return mux
}

func newTestClient(t *testing.T, f *fakeGatewayServer) (*Client, func()) {
    t.Helper()
    srv := httptest.NewServer(f.handler())
    c := NewClient(ClientConfig{
        BaseURL:      srv.URL,
        ClientID:     "client-id",
        ClientSecret: "secret",
        Destination:  "dest",
        Timeout:      2 * time.Second,
        TokenMargin:  time.Minute,
    })
    return c, srv.Close
}

func TestClientCreateAndFetchCheckout(t *testing.T) {
    ctx := context.Background()
    f := &fakeGatewayServer{t: t, checkout: CheckoutState{
        ID: "chk_1", Status: "open",
        Transactions: []GatewayTransaction{{ID: "tr_1", Status: "open"}},
    }}
    c, done := newTestClient(t, f)
    defer done()

    id, err := c.CreateCheckout(ctx, CheckoutRequest{Reference: "ref", Amount: dec("20.00"), Currency: "EUR"})
    if err != nil {
        t.Fatalf("create: %v", err)
    }
    if id != "chk_1" {
        t.Fatalf("id = %q, want chk_1", id)
    }
    state, err := c.FetchCheckout(ctx, id)
    if err != nil {
        t.Fatalf("fetch: %v", err)
    }
    if state.Outcome() != StatusPending {
        t.Fatalf("outcome = %s, want PENDING", state.Outcome())
    }
    if f.tokenCalls != 1 {
        t.Fatalf("token fetched %d times, want 1 (cached)", f.tokenCalls)
    }
}

func TestClientRetriesOnceAfter401(t *testing.T) {
    ctx := context.Background()
    f := &fakeGatewayServer{t: t, rejectFirst: true, checkout: CheckoutState{ID: "chk_1", Status: "paid"}}
    c, done := newTestClient(t, f)
    defer done()

    state, err := c.FetchCheckout(ctx, "chk_1")
    if err != nil {
        t.Fatalf("fetch after 401: %v", err)
    }
    if state.Outcome() != StatusPaid {
        t.Fatalf("outcome = %s, want PAID", state.Outcome())
    }
    if f.tokenCalls != 2 {
        t.Fatalf("token fetched %d times, want 2 (invalidate + refetch)", f.tokenCalls)
    }
}

func TestClientSubmitTokenTreats409AsSuccess(t *testing.T) {
    ctx := context.Background()
    f := &fakeGatewayServer{t: t, submitStatus: http.StatusConflict}
    c, done := newTestClient(t, f)
    defer done()

    if err := c.SubmitToken(ctx, "chk_1", "card-token"); err != nil {
        t.Fatalf("submit with 409: %v", err)
    }
}

func TestClientNetworkErrorIsGatewayUnavailable(t *testing.T) {
    c := NewClient(ClientConfig{
        BaseURL:  "http://127.0.0.1:1", // nothing listens here
        ClientID: "client-id", ClientSecret: "secret",
        Timeout: 500 * time.Millisecond,
    })
    _, err := c.FetchCheckout(context.Background(), "chk_1")
    if err == nil {
        t.Fatal("expected error from unreachable gateway")
    }
}

func TestOutcomeMapping(t *testing.T) {
    cases := []struct {
        state CheckoutState
        want  Status
    }{
        {CheckoutState{Status: "paid"}, StatusPaid},
        {CheckoutState{Status: "PAID"}, StatusPaid},
        {CheckoutState{Status: "failed"}, StatusFailed},
        {CheckoutState{Status: "canceled"}, StatusFailed},
        {CheckoutState{Status: "expired"}, StatusFailed},
        {CheckoutState{Status: "open"}, StatusPending},
        {CheckoutState{Status: "open", Transactions: []GatewayTransaction{{ID: "t1", Status: "successful"}}}, StatusPaid},
        {CheckoutState{Status: "open", Transactions: []GatewayTransaction{{ID: "t1", Status: "open"}}}, StatusPending},
    }
    for _, tc := range cases {
        if got := tc.state.Outcome(); got != tc.want {
            t.Errorf("Outcome(%q/%v) = %s, want %s", tc.state.Status, tc.state.Transactions, got, tc.want)
        }
    }
}
