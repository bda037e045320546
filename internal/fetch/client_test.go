package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/snac-tools/eacsupp/internal/model"
	"github.com/snac-tools/eacsupp/internal/polite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient() *Client {
	return NewClient(model.HTTPConfig{UserAgent: "eacsupp-test"}, polite.NewThrottle(0), nil)
}

func TestClient_HeadFollowsRedirectsOnlyWhenAsked(t *testing.T) {
	final := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(http.StatusOK)
	}))
	defer final.Close()

	redirect := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, final.URL, http.StatusMovedPermanently)
	}))
	defer redirect.Close()

	c := newTestClient()

	status, err := c.Head(context.Background(), redirect.URL, true)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)

	status, err = c.Head(context.Background(), redirect.URL, false)
	require.NoError(t, err)
	assert.Equal(t, http.StatusMovedPermanently, status)
}

func TestClient_HeadReportsErrorStatusWithoutError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	status, err := newTestClient().Head(context.Background(), server.URL, true)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestClient_HeadTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestClient().Head(context.Background(), url, true)
	assert.Error(t, err)
}

func TestClient_GetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "eacsupp-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "Jane Doe", r.URL.Query().Get("q"))
		assert.Equal(t, "keep", r.URL.Query().Get("existing"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"count": 3}`))
	}))
	defer server.Close()

	var out struct {
		Count int `json:"count"`
	}
	err := newTestClient().GetJSON(context.Background(), server.URL+"?existing=keep", map[string][]string{"q": {"Jane Doe"}}, &out)
	require.NoError(t, err)
	assert.Equal(t, 3, out.Count)
}

func TestClient_GetJSONStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	var out map[string]any
	err := newTestClient().GetJSON(context.Background(), server.URL, nil, &out)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Nil(t, out)
}

func TestClient_GetJSONMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"count": `))
	}))
	defer server.Close()

	var out map[string]any
	err := newTestClient().GetJSON(context.Background(), server.URL, nil, &out)
	require.Error(t, err)

	var statusErr *StatusError
	assert.False(t, errors.As(err, &statusErr))
}

func TestProxyFunc(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "https://dbpedia.org/sparql", nil)

	u, err := proxyFunc("http://plain:3128", "http://secure:3129")(req)
	require.NoError(t, err)
	assert.Equal(t, "secure:3129", u.Host)

	u, err = proxyFunc("http://plain:3128", "")(req)
	require.NoError(t, err)
	assert.Equal(t, "plain:3128", u.Host)
}
