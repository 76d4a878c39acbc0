// Package scanner wraps the external content-classification API. The caller
// gets a plain allow/block verdict; every transport failure surfaces as
// ErrUnavailable so the pipeline can apply its fail-open policy.
package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnavailable is returned for any network error, timeout, or non-2xx
// response from the classification API. Callers treat it as an inconclusive
// verdict, never as a block.
var ErrUnavailable = errors.New("scanner: unavailable")

// Action is the classification outcome.
type Action string

const (
	ActionAllow Action = "allow"
	ActionBlock Action = "block"
)

// Verdict is the result of one classification call.
type Verdict struct {
	Action   Action
	Category string
}

const (
	defaultTimeout = 8 * time.Second
	scanPath       = "/v1/scan/sync/request"
)

// Config holds the classification API settings.
type Config struct {
	Endpoint      string // base URL of the scan service
	Token         string
	InputProfile  string
	OutputProfile string
	AppName       string
	AppUser       string
	Model         string
	Timeout       time.Duration // per-call timeout
}

// Client is the safety scanner client. Both scan variants are synchronous:
// the caller awaits the verdict.
type Client struct {
	httpClient *http.Client
	cfg        Config
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
	}
}

type scanMetadata struct {
	AIModel string `json:"ai_model"`
	AppName string `json:"app_name"`
	AppUser string `json:"app_user"`
}

type scanProfile struct {
	ProfileName string `json:"profile_name"`
}

type scanContent struct {
	Prompt   string `json:"prompt,omitempty"`
	Response string `json:"response,omitempty"`
}

type scanRequest struct {
	Metadata  scanMetadata  `json:"metadata"`
	AIProfile scanProfile   `json:"ai_profile"`
	Contents  []scanContent `json:"contents"`
}

type scanResponse struct {
	Action      string `json:"action"`
	Category    string `json:"category"`
	ProfileName string `json:"profile_name"`
}

// ScanInput classifies a raw user prompt before any generation begins.
func (c *Client) ScanInput(ctx context.Context, text string) (Verdict, error) {
	return c.scan(ctx, scanContent{Prompt: text}, c.cfg.InputProfile)
}

// ScanOutput classifies accumulated response text against the output profile.
func (c *Client) ScanOutput(ctx context.Context, text string) (Verdict, error) {
	return c.scan(ctx, scanContent{Response: text}, c.cfg.OutputProfile)
}

func (c *Client) scan(ctx context.Context, content scanContent, profile string) (Verdict, error) {
	body, err := json.Marshal(scanRequest{
		Metadata: scanMetadata{
			AIModel: c.cfg.Model,
			AppName: c.cfg.AppName,
			AppUser: c.cfg.AppUser,
		},
		AIProfile: scanProfile{ProfileName: profile},
		Contents:  []scanContent{content},
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("scanner.Client.scan: marshal: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	url := strings.TrimRight(c.cfg.Endpoint, "/") + scanPath

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Verdict{}, fmt.Errorf("scanner.Client.scan: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-pan-token", c.cfg.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("scanner.Client.scan: %v: %w", err, ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain a bounded amount so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		return Verdict{}, fmt.Errorf("scanner.Client.scan: status %d: %w", resp.StatusCode, ErrUnavailable)
	}

	var sr scanResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return Verdict{}, fmt.Errorf("scanner.Client.scan: decode: %w", ErrUnavailable)
	}

	// Anything other than an explicit block is an allow.
	action := ActionAllow
	if sr.Action == string(ActionBlock) {
		action = ActionBlock
	}

	return Verdict{Action: action, Category: sr.Category}, nil
}
