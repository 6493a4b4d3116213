package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat-relay/internal/domain"
)

// ---------------------------------------------------------------------------
// NewClient
// ---------------------------------------------------------------------------

func TestNewClient_Validation(t *testing.T) {
	cases := []struct {
		name      string
		endpoint  string
		accessKey string
	}{
		{name: "missing endpoint", endpoint: " ", accessKey: "key"},
		{name: "missing access key", endpoint: "https://agent.example", accessKey: ""},
		{name: "relative endpoint", endpoint: "agent.example", accessKey: "key"},
		{name: "unsupported scheme", endpoint: "ftp://agent.example", accessKey: "key"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewClient(tc.endpoint, tc.accessKey)
			require.Error(t, err)
			require.ErrorIs(t, err, domain.ErrNotConfigured)
		})
	}
}

func TestNewClient_TrimsTrailingSlash(t *testing.T) {
	c, err := NewClient("https://agent.example/ ", "key")
	require.NoError(t, err)
	require.Equal(t, "https://agent.example/api/v1/chat/completions", c.completionsURL())
}

func TestSend_ZeroClientIsNotConfigured(t *testing.T) {
	_, err := (&Client{}).Send(context.Background(), "hi")
	require.ErrorIs(t, err, domain.ErrNotConfigured)

	var reqErr *RequestError
	require.False(t, errors.As(err, &reqErr))
}

// ---------------------------------------------------------------------------
// Client.Send
// ---------------------------------------------------------------------------

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(srv.URL, "sk-test", WithHTTPClient(&http.Client{Timeout: 2 * time.Second}))
	require.NoError(t, err)
	return c
}

func TestSend_HappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/chat/completions", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		reqBody, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.JSONEq(t, `{
			"messages": [{"role": "user", "content": "hi there"}],
			"stream": false,
			"include_functions_info": false,
			"include_retrieval_info": false,
			"include_guardrails_info": false
		}`, string(reqBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-123",
			"object": "chat.completion",
			"created": 1670000000,
			"model": "agent",
			"choices": [{
				"index": 0,
				"message": {"role": "assistant", "content": "Hello from mock"},
				"finish_reason": "stop"
			}]
		}`))
	}))
	defer srv.Close()

	reply, err := newTestClient(t, srv).Send(context.Background(), "hi there")
	require.NoError(t, err)
	require.Equal(t, "chatcmpl-123", reply.ID)
	text, ok := reply.Text()
	require.True(t, ok)
	require.Equal(t, "Hello from mock", text)
}

func TestSend_NoChoicesIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"chatcmpl-1"}`))
	}))
	defer srv.Close()

	reply, err := newTestClient(t, srv).Send(context.Background(), "hi")
	require.NoError(t, err)
	_, ok := reply.Text()
	require.False(t, ok)
}

func TestSend_Non2xx(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusTooManyRequests, http.StatusInternalServerError} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"message":"Invalid access token"}`))
		}))

		_, err := newTestClient(t, srv).Send(context.Background(), "hi")
		srv.Close()

		require.Error(t, err)
		require.Equal(t, "agent request failed", err.Error())

		var statusErr *HTTPStatusError
		require.ErrorAs(t, err, &statusErr)
		require.Equal(t, status, statusErr.HTTPStatusCode())
		require.Contains(t, statusErr.Body, "Invalid access token")
	}
}

func TestSend_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not-a-json`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Send(context.Background(), "hi")
	require.Error(t, err)
	require.Equal(t, "agent request failed", err.Error())
	require.ErrorContains(t, errors.Unwrap(err), "decode response")
}

func TestSend_NetworkError(t *testing.T) {
	c, err := NewClient("http://127.0.0.1:1", "sk-test", WithHTTPClient(&http.Client{Timeout: 100 * time.Millisecond}))
	require.NoError(t, err)

	_, err = c.Send(context.Background(), "hi")
	require.Error(t, err)
	require.Equal(t, "agent request failed", err.Error())
	require.NotContains(t, err.Error(), "127.0.0.1")

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	require.ErrorContains(t, reqErr.Err, "send request")
}

func TestSend_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	c.httpClient = &http.Client{Timeout: 50 * time.Millisecond}
	_, err := c.Send(context.Background(), "hi")
	require.Error(t, err)
}

func TestSend_ErrorNeverLeaksAccessKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": r.Header.Get("Authorization")})
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Send(context.Background(), "hi")
	require.Error(t, err)
	require.NotContains(t, err.Error(), "sk-test")
}
