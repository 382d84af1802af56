package config

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Egham-7/adaptive-h1/internal/models"
	"github.com/Egham-7/adaptive-h1/pkg/builder"

	"github.com/alicebob/miniredis/v2"
)

func newTestGateway(t *testing.T, b *builder.Builder) *Gateway {
	t.Helper()
	g := NewGatewayWithBuilder(b)
	if err := g.Setup(); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	t.Cleanup(g.Shutdown)
	return g
}

func getJSON(t *testing.T, g *Gateway, target string) (int, map[string]any) {
	t.Helper()
	resp, err := g.App().Test(httptest.NewRequest(http.MethodGet, target, nil), -1)
	if err != nil {
		t.Fatalf("GET %s: %v", target, err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("GET %s: decode: %v", target, err)
	}
	return resp.StatusCode, body
}

// refusedAddr returns an address nothing listens on
func refusedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func TestGatewayRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		builder *builder.Builder
		missing string
	}{
		{"no port", builder.New().Port(""), "server.port"},
		{"session without redis", builder.New().WithSession(models.SessionConfig{}), "redis.url"},
		{"database without location", builder.New().WithDatabase(models.DatabaseConfig{Type: models.PostgreSQL}), "database.dsn"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewGatewayWithBuilder(tt.builder).Setup()
			if err == nil || !strings.Contains(err.Error(), tt.missing) {
				t.Fatalf("Setup error = %v, want mention of %s", err, tt.missing)
			}
		})
	}
}

func TestGatewayWithoutInfrastructure(t *testing.T) {
	g := newTestGateway(t, builder.New().LogLevel("error"))

	status, body := getJSON(t, g, "/health")
	if status != http.StatusOK {
		t.Fatalf("health status = %d, body %v", status, body)
	}
	checks := body["checks"].(map[string]any)
	if checks["redis"] != "not_configured" || checks["engine"] != "healthy" {
		t.Fatalf("checks = %v", checks)
	}

	status, body = getJSON(t, g, "/v1/stats")
	if status != http.StatusOK {
		t.Fatalf("stats status = %d", status)
	}
	if _, ok := body["breakers"]; ok {
		t.Errorf("breakers reported without Redis: %v", body)
	}
	if _, ok := body["journal"]; ok {
		t.Errorf("journal reported without a database: %v", body)
	}

	if status, _ := getJSON(t, g, "/v1/stats/exchanges?destination=x"); status != http.StatusNotFound {
		t.Errorf("exchanges status = %d, want 404", status)
	}
	if g.Session() != nil {
		t.Errorf("session node started without configuration")
	}
}

func TestGatewayWiresInfrastructure(t *testing.T) {
	mr := miniredis.RunT(t)
	b := builder.New().
		LogLevel("error").
		WithRedis("redis://"+mr.Addr(), 4).
		WithDatabase(models.DatabaseConfig{
			Type:         models.SQLite,
			FilePath:     fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
			MaxOpenConns: 1,
		}).
		WithSession(models.SessionConfig{MaxIntervalSec: 60, ScavengeIntervalSec: 1, EvictionPolicy: -1})
	g := newTestGateway(t, b)

	if g.Session() == nil || g.Session().Port() == 0 {
		t.Fatalf("session node not started")
	}

	status, body := getJSON(t, g, "/health")
	if status != http.StatusOK || body["checks"].(map[string]any)["redis"] != "healthy" {
		t.Fatalf("health = %d %v", status, body)
	}

	// A refused fetch feeds both the breaker and the journal
	addr := refusedAddr(t)
	target := "http://" + addr + "/"
	resp, err := g.App().Test(httptest.NewRequest(http.MethodGet, "/v1/fetch?target="+url.QueryEscape(target), nil), -1)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("fetch status = %d, want 502", resp.StatusCode)
	}

	destination := "http://" + addr
	deadline := time.Now().Add(5 * time.Second)
	for {
		status, body := getJSON(t, g, "/v1/stats/exchanges?destination="+url.QueryEscape(destination))
		if status != http.StatusOK {
			t.Fatalf("exchanges status = %d", status)
		}
		if records, _ := body["exchanges"].([]any); len(records) == 1 {
			record := records[0].(map[string]any)
			if record["succeeded"] != false {
				t.Fatalf("record = %v", record)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("exchange never journaled: %v", body)
		}
		time.Sleep(20 * time.Millisecond)
	}

	status, body = getJSON(t, g, "/v1/stats")
	if status != http.StatusOK {
		t.Fatalf("stats status = %d", status)
	}
	breakers := body["breakers"].(map[string]any)
	if breakers[destination] != "Closed" {
		t.Errorf("breakers = %v", breakers)
	}
	if summaries, _ := body["journal"].([]any); len(summaries) != 1 {
		t.Errorf("journal = %v", body["journal"])
	}
}

func TestGatewayEchoThroughSPI(t *testing.T) {
	g := newTestGateway(t, builder.New().LogLevel("error").WithTimeout(2*time.Second))

	req := httptest.NewRequest(http.MethodPost, "/v1/echo", strings.NewReader("ping"))
	resp, err := g.App().Test(req, -1)
	if err != nil {
		t.Fatalf("echo: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "ping" {
		t.Fatalf("echo = %d %q", resp.StatusCode, body)
	}
}

func TestGatewayShutdownIsIdempotent(t *testing.T) {
	g := NewGatewayWithBuilder(builder.New().LogLevel("error"))
	if err := g.Setup(); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	engine := g.Engine()
	g.Shutdown()
	g.Shutdown()
	if engine.IsRunning() {
		t.Fatalf("engine still running after Shutdown")
	}
}

func TestNewGatewayPanicsOnNilConfig(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("NewGateway(nil) did not panic")
		}
	}()
	NewGateway(nil)
}
