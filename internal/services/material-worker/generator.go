package material_worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/NordCoder/greensteps/internal/domain/material"
)

var ErrGeneratorNotConfigured = errors.New("material generator is not configured")

// HTTPGenerator hands the material to an external generation service.
// Any 2xx response counts as done.
type HTTPGenerator struct {
	URL    string
	Client *http.Client
}

type generateRequest struct {
	MaterialID string `json:"material_id"`
	OwnerID    string `json:"owner_id"`
	Title      string `json:"title"`
}

func (g HTTPGenerator) Generate(ctx context.Context, m *material.Material) error {
	if g.URL == "" {
		return ErrGeneratorNotConfigured
	}
	body, err := json.Marshal(generateRequest{
		MaterialID: m.ID.String(),
		OwnerID:    m.OwnerID.String(),
		Title:      m.Title,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("generator request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("generator responded %d", resp.StatusCode)
	}
	return nil
}
