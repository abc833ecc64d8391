package captcha

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seenForm struct {
	mu   sync.Mutex
	form url.Values
}

func (s *seenForm) Get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.form.Get(key)
}

func turnstile(t *testing.T, status int, body string) (*httptest.Server, *seenForm) {
	t.Helper()
	seen := &seenForm{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		seen.mu.Lock()
		seen.form = r.PostForm
		seen.mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

func TestVerify_Success(t *testing.T) {
	srv, got := turnstile(t, http.StatusOK, `{"success":true}`)
	v := NewVerifier("s3cret", srv.URL, srv.Client(), nil)

	require.NoError(t, v.Verify(context.Background(), "tok", "198.51.100.4"))
	assert.Equal(t, "s3cret", got.Get("secret"))
	assert.Equal(t, "tok", got.Get("response"))
	assert.Equal(t, "198.51.100.4", got.Get("remoteip"))
}

func TestVerify_Rejected(t *testing.T) {
	srv, _ := turnstile(t, http.StatusOK, `{"success":false,"error-codes":["invalid-input-response"]}`)
	v := NewVerifier("s3cret", srv.URL, srv.Client(), nil)

	assert.ErrorIs(t, v.Verify(context.Background(), "tok", ""), ErrFailed)
	assert.ErrorIs(t, v.Verify(context.Background(), "  ", ""), ErrFailed)
}

func TestVerify_Unavailable(t *testing.T) {
	srv, _ := turnstile(t, http.StatusBadGateway, `oops`)
	v := NewVerifier("s3cret", srv.URL, srv.Client(), nil)
	assert.ErrorIs(t, v.Verify(context.Background(), "tok", ""), ErrUnavailable)

	garbled, _ := turnstile(t, http.StatusOK, `not json`)
	v = NewVerifier("s3cret", garbled.URL, garbled.Client(), nil)
	assert.ErrorIs(t, v.Verify(context.Background(), "tok", ""), ErrUnavailable)

	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()
	v = NewVerifier("s3cret", closed.URL, closed.Client(), nil)
	assert.ErrorIs(t, v.Verify(context.Background(), "tok", ""), ErrUnavailable)
}

func TestVerify_DisabledWithoutSecret(t *testing.T) {
	v := NewVerifier("", "http://127.0.0.1:1", nil, nil)
	assert.False(t, v.Enabled())
	assert.NoError(t, v.Verify(context.Background(), "", ""))
}
