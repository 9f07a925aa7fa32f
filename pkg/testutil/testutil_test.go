package testutil

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenServerCountsGrants(t *testing.T) {
	called := 0
	ts := NewTokenServer(t, http.StatusOK, TokenResponse, OnHit(func() { called++ }))

	resp, err := http.PostForm(ts.URL, url.Values{"grant_type": {"client_credentials"}})
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), ts.Hits())
	assert.Equal(t, 1, called)
	assert.Equal(t, "client_credentials", <-ts.Grants)
}

func TestRecords(t *testing.T) {
	recs := Records(3)
	require.Len(t, recs, 3)
	assert.Equal(t, 2, recs[2]["id"])
	assert.Equal(t, "user 2", recs[2]["name"])
}

func TestAssertEventually(t *testing.T) {
	start := time.Now()
	AssertEventually(t, func() bool { return time.Since(start) > 20*time.Millisecond }, time.Second, "clock advances")
}
