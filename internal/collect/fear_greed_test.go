package collect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFearGreedLatest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fng/", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"data":[{"value":"73","value_classification":"Greed","timestamp":"1769900400"}]}`))
	}))
	defer srv.Close()

	idx, err := NewFearGreed(srv.URL).Latest(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 73, idx.Value, 1e-9)
	assert.Equal(t, "Greed", idx.Classification)
	assert.Equal(t, int64(1769900400), idx.Timestamp.Unix())
}

func TestFearGreedLatestEmptyData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	_, err := NewFearGreed(srv.URL).Latest(context.Background())
	require.Error(t, err)
}

func TestFearGreedLatestHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewFearGreed(srv.URL).Latest(context.Background())
	require.ErrorContains(t, err, "HTTP 429")
}
