// Package captcha verifies Cloudflare Turnstile responses.
package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/NordCoder/greensteps/internal/obs"
)

const DefaultVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

var (
	ErrFailed      = errors.New("captcha verification failed")
	ErrUnavailable = errors.New("captcha service unavailable")
)

var verifications = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "captcha_verifications_total",
	Help: "Turnstile verifications by result.",
}, []string{"result"})

type Verifier struct {
	secret    string
	verifyURL string
	client    *http.Client
	log       *zap.Logger
}

// NewVerifier returns a verifier that accepts everything when secret is
// empty.
func NewVerifier(secret, verifyURL string, client *http.Client, log *zap.Logger) *Verifier {
	if verifyURL == "" {
		verifyURL = DefaultVerifyURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Verifier{secret: secret, verifyURL: verifyURL, client: client, log: log}
}

func (v *Verifier) Enabled() bool { return v.secret != "" }

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
	Hostname   string   `json:"hostname"`
}

func (v *Verifier) Verify(ctx context.Context, token, remoteIP string) error {
	log := obs.FromContext(ctx, v.log)
	if !v.Enabled() {
		log.Warn("captcha.skipped", zap.String("reason", "secret not configured"))
		verifications.WithLabelValues("skipped").Inc()
		return nil
	}
	if strings.TrimSpace(token) == "" {
		verifications.WithLabelValues("failed").Inc()
		return ErrFailed
	}

	form := url.Values{"secret": {v.secret}, "response": {token}}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("captcha request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		log.Error("captcha.unavailable", zap.Error(err))
		verifications.WithLabelValues("unavailable").Inc()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		log.Error("captcha.unavailable", zap.Int("status", resp.StatusCode))
		verifications.WithLabelValues("unavailable").Inc()
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	var out siteverifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out); err != nil {
		verifications.WithLabelValues("unavailable").Inc()
		return fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	if !out.Success {
		log.Warn("captcha.failed", zap.Strings("error_codes", out.ErrorCodes))
		verifications.WithLabelValues("failed").Inc()
		return ErrFailed
	}
	verifications.WithLabelValues("ok").Inc()
	return nil
}
