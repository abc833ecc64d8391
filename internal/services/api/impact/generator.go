package impact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	domainimpact "github.com/NordCoder/greensteps/internal/domain/impact"
)

const maxPlanBytes = 1 << 20

// HTTPGenerator asks an external plan service for a JSON plan. Transport
// failures and 5xx answers mean the service is unavailable; any other
// non-2xx answer is reported as invalid output.
type HTTPGenerator struct {
	URL    string
	Client *http.Client
	// Timeout bounds one request; zero leaves it to Client.
	Timeout time.Duration
}

func (g HTTPGenerator) Generate(ctx context.Context, p domainimpact.Prompt) (json.RawMessage, error) {
	if g.URL == "" {
		return nil, fmt.Errorf("%w: no url configured", domainimpact.ErrGeneratorUnavailable)
	}
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainimpact.ErrGeneratorUnavailable, err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(io.LimitReader(resp.Body, maxPlanBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domainimpact.ErrGeneratorUnavailable, err)
	}
	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", domainimpact.ErrGeneratorUnavailable, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &domainimpact.OutputError{Preview: preview(string(out)), Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return out, nil
}
