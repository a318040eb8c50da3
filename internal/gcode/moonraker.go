package gcode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// MoonrakerClient sends G-code scripts to a Klipper/Moonraker instance via
// POST /printer/gcode/script.
type MoonrakerClient struct {
	BaseURL string
	// APIKey, when set, is sent as the X-Api-Key header.
	APIKey     string
	HTTPClient *http.Client
}

// NewMoonrakerClient builds a client for the given host and port with a
// sane request timeout.
func NewMoonrakerClient(host string, port int, apiKey string) *MoonrakerClient {
	return &MoonrakerClient{
		BaseURL:    fmt.Sprintf("http://%s:%d", host, port),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	}
}

type scriptRequest struct {
	Script string `json:"script"`
}

// SendScript joins the commands into one script and posts it to Moonraker.
func (c *MoonrakerClient) SendScript(ctx context.Context, commands []string) error {
	if len(commands) == 0 {
		return fmt.Errorf("no commands to send")
	}

	body, err := json.Marshal(scriptRequest{Script: strings.Join(commands, "\n")})
	if err != nil {
		return fmt.Errorf("marshal gcode script: %w", err)
	}

	url := c.BaseURL + "/printer/gcode/script"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build Moonraker request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("X-Api-Key", c.APIKey)
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post to Moonraker: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("Moonraker returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
