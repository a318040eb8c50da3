package gcode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSendScript(t *testing.T) {
	var gotPath, gotAPIKey, gotScript string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("X-Api-Key")

		var req struct {
			Script string `json:"script"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		gotScript = req.Script
		w.Write([]byte(`{"result": "ok"}`))
	}))
	defer srv.Close()

	c := &MoonrakerClient{BaseURL: srv.URL, APIKey: "secret", HTTPClient: srv.Client()}
	err := c.SendScript(context.Background(), []string{"G91", "G1 X5 F400", "G90"})
	if err != nil {
		t.Fatalf("SendScript: %v", err)
	}

	if gotPath != "/printer/gcode/script" {
		t.Errorf("path = %q, want /printer/gcode/script", gotPath)
	}
	if gotAPIKey != "secret" {
		t.Errorf("X-Api-Key = %q, want secret", gotAPIKey)
	}
	if gotScript != "G91\nG1 X5 F400\nG90" {
		t.Errorf("script = %q", gotScript)
	}
}

func TestSendScriptNoAPIKeyHeader(t *testing.T) {
	sawHeader := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawHeader = r.Header["X-Api-Key"]
	}))
	defer srv.Close()

	c := &MoonrakerClient{BaseURL: srv.URL, HTTPClient: srv.Client()}
	if err := c.SendScript(context.Background(), []string{"G28"}); err != nil {
		t.Fatalf("SendScript: %v", err)
	}
	if sawHeader {
		t.Error("X-Api-Key header must be omitted when no key is configured")
	}
}

func TestSendScriptHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "printer is shutdown", http.StatusConflict)
	}))
	defer srv.Close()

	c := &MoonrakerClient{BaseURL: srv.URL, HTTPClient: srv.Client()}
	err := c.SendScript(context.Background(), []string{"G28"})
	if err == nil {
		t.Fatal("expected error on HTTP 409")
	}
	if !strings.Contains(err.Error(), "409") || !strings.Contains(err.Error(), "printer is shutdown") {
		t.Errorf("error should carry status and body, got: %v", err)
	}
}

func TestSendScriptEmpty(t *testing.T) {
	c := &MoonrakerClient{BaseURL: "http://localhost:1"}
	if err := c.SendScript(context.Background(), nil); err == nil {
		t.Error("expected error for empty command list")
	}
}

func TestNewMoonrakerClientBaseURL(t *testing.T) {
	c := NewMoonrakerClient("pi.local", 7125, "")
	if c.BaseURL != "http://pi.local:7125" {
		t.Errorf("BaseURL = %q", c.BaseURL)
	}
	if c.HTTPClient == nil {
		t.Error("HTTPClient should be set")
	}
}
