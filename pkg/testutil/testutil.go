// Package testutil provides shared fixtures for relay tests
package testutil

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ajitpratap0/relay/pkg/models"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// TestLogger creates a test logger that writes to the test output.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// AssertEventually asserts that a condition becomes true within the specified timeout.
// It checks the condition every 10ms until it succeeds or the timeout expires.
func AssertEventually(t *testing.T, condition func() bool, timeout time.Duration, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

// Records builds n records shaped {"id": i, "name": "user i"}
func Records(n int) []models.Record {
	out := make([]models.Record, n)
	for i := range out {
		out[i] = models.Record{"id": i, "name": fmt.Sprintf("user %d", i)}
	}
	return out
}

// TokenResponse is a successful OAuth2 token endpoint body.
const TokenResponse = `{"access_token":"fresh","token_type":"bearer","expires_in":3600,"refresh_token":"rotated"}`

// TokenServer is a canned OAuth2 token endpoint. It counts hits and
// publishes the grant_type of each exchange on Grants.
type TokenServer struct {
	*httptest.Server
	Grants chan string

	hits  atomic.Int32
	onHit func()
}

// TokenServerOption customizes a TokenServer
type TokenServerOption func(*TokenServer)

// OnHit runs fn on every token request before the response is written
func OnHit(fn func()) TokenServerOption {
	return func(ts *TokenServer) { ts.onHit = fn }
}

// NewTokenServer starts a token endpoint answering every request with status
// and body. It is closed when the test ends.
func NewTokenServer(t *testing.T, status int, body string, opts ...TokenServerOption) *TokenServer {
	t.Helper()
	ts := &TokenServer{Grants: make(chan string, 16)}
	for _, opt := range opts {
		opt(ts)
	}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.hits.Add(1)
		if ts.onHit != nil {
			ts.onHit()
		}
		_ = r.ParseForm()
		select {
		case ts.Grants <- r.PostForm.Get("grant_type"):
		default:
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts
}

// Hits returns the number of requests served so far
func (ts *TokenServer) Hits() int32 {
	return ts.hits.Load()
}
