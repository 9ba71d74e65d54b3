//go:build integration

// Integration tests against a running server: go run ./cmd/overlay
//
// Run: go test -tags=integration ./internal/server/
package server_test

import (
	"encoding/json"
	"net/http"
	"os"
	"testing"
)

func baseURL() string {
	if u := os.Getenv("OVERLAY_BASE_URL"); u != "" {
		return u
	}
	return "http://localhost:8086"
}

func getJSON(t *testing.T, path string, v any) {
	t.Helper()
	resp, err := http.Get(baseURL() + path)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status=%d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatal(err)
	}
}

func TestHealth(t *testing.T) {
	var body struct {
		Status string `json:"status"`
	}
	getJSON(t, "/health", &body)
	if body.Status != "ok" {
		t.Fatalf("status=%q, want ok", body.Status)
	}
}

func TestGetInfo(t *testing.T) {
	var body struct {
		Name string `json:"name"`
	}
	getJSON(t, "/api/v1/info", &body)
	if body.Name != "plat-overlay" {
		t.Fatalf("name=%q, want plat-overlay", body.Name)
	}
}

func TestListLayers(t *testing.T) {
	var body struct {
		Data []json.RawMessage `json:"data"`
	}
	getJSON(t, "/api/v1/layers", &body)
}

func TestGetState(t *testing.T) {
	var body struct {
		Layers []json.RawMessage `json:"layers"`
	}
	getJSON(t, "/api/v1/state", &body)
	if body.Layers == nil {
		t.Fatal("layers is null, want an array")
	}
}
