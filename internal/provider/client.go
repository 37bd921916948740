package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/joaohacker/creditpanel/internal/config"
)

// Client talks to the upstream credit provider the panel resells from.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

// Stock is the provider-side credit inventory available for resale.
type Stock struct {
	CreditsAvailable int64     `json:"credits_available"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Job is one in-flight delivery job on the provider side.
type Job struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Credits   int64     `json:"credits"`
	StartedAt time.Time `json:"started_at"`
}

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiKey:  cfg.ProviderAPIKey,
		baseURL: strings.TrimRight(cfg.ProviderBaseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

func (c *Client) GetStock(ctx context.Context) (*Stock, error) {
	var envelope struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Data Stock  `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/stock", &envelope); err != nil {
		return nil, err
	}
	if envelope.Code != 200 {
		return nil, fmt.Errorf("get stock failed: code=%d msg=%s", envelope.Code, envelope.Msg)
	}
	return &envelope.Data, nil
}

func (c *Client) ListJobs(ctx context.Context) ([]Job, error) {
	var envelope struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Data []Job  `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/jobs", &envelope); err != nil {
		return nil, err
	}
	if envelope.Code != 200 {
		return nil, fmt.Errorf("list jobs failed: code=%d msg=%s", envelope.Code, envelope.Msg)
	}
	return envelope.Data, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	fullURL := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("get provider: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= 300 {
		if c.log != nil {
			c.log.Error("provider request failed", "status", resp.StatusCode, "url", fullURL, "body", truncateBody(rawBody))
		}
		return fmt.Errorf("provider error: status=%d url=%s body=%s", resp.StatusCode, fullURL, truncateBody(rawBody))
	}

	if err := json.Unmarshal(rawBody, out); err != nil {
		return fmt.Errorf("decode provider response: %w (body=%s)", err, truncateBody(rawBody))
	}
	return nil
}

func truncateBody(body []byte) string {
	const limit = 512
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit]) + "..."
}
