// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bureau-foundation/diskstream/lib/testutil"
)

// metricsMux mounts a registry the way the broker daemon does: a
// private registry behind "GET /metrics" and nothing else.
func metricsMux(registry *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return mux
}

func startHTTPServer(t *testing.T, handler http.Handler) (*HTTPServer, context.CancelFunc, <-chan error) {
	t.Helper()
	server := NewHTTPServer(HTTPServerConfig{
		Address: "127.0.0.1:0",
		Handler: handler,
		Logger:  slog.New(slog.NewJSONHandler(io.Discard, nil)),
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	testutil.RequireClosed(t, server.Ready(), testutil.Timeout, "metrics endpoint ready")
	return server, cancel, done
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	response, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer response.Body.Close()
	body, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatalf("reading %s: %v", url, err)
	}
	return response.StatusCode, string(body)
}

func TestHTTPServerServesMetrics(t *testing.T) {
	t.Parallel()
	registry := prometheus.NewRegistry()
	forwarded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "diskstream_records_forwarded_total",
		Help: "Records delivered to subscribers.",
	})
	registry.MustRegister(forwarded)
	forwarded.Add(3)

	server, cancel, done := startHTTPServer(t, metricsMux(registry))
	base := "http://" + server.Addr().String()

	status, body := get(t, base+"/metrics")
	if status != http.StatusOK {
		t.Fatalf("GET /metrics status = %d, want 200", status)
	}
	if !strings.Contains(body, "diskstream_records_forwarded_total 3") {
		t.Errorf("GET /metrics body lacks the forwarded counter:\n%s", body)
	}

	// Counters are read at scrape time.
	forwarded.Inc()
	if _, body := get(t, base+"/metrics"); !strings.Contains(body, "diskstream_records_forwarded_total 4") {
		t.Errorf("second scrape did not see the increment:\n%s", body)
	}

	if status, _ := get(t, base+"/"); status != http.StatusNotFound {
		t.Errorf("GET / status = %d, want 404", status)
	}
	response, err := http.Post(base+"/metrics", "text/plain", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("POST /metrics: %v", err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST /metrics status = %d, want 405", response.StatusCode)
	}

	cancel()
	if err := testutil.RequireReceive(t, done, testutil.Timeout, "metrics endpoint shutdown"); err != nil {
		t.Errorf("Serve = %v, want nil after cancel", err)
	}
	if _, err := net.Dial("tcp", server.Addr().String()); err == nil {
		t.Error("metrics endpoint still accepting after shutdown")
	}
}

func TestHTTPServerPanicsOnMissingConfig(t *testing.T) {
	t.Parallel()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	handler := metricsMux(prometheus.NewRegistry())

	tests := []struct {
		name   string
		config HTTPServerConfig
	}{
		{"no address", HTTPServerConfig{Handler: handler, Logger: logger}},
		{"no handler", HTTPServerConfig{Address: "127.0.0.1:0", Logger: logger}},
		{"no logger", HTTPServerConfig{Address: "127.0.0.1:0", Handler: handler}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Errorf("NewHTTPServer(%s) did not panic", test.name)
				}
			}()
			NewHTTPServer(test.config)
		})
	}
}

func TestHTTPServerBindFailure(t *testing.T) {
	t.Parallel()
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserving port: %v", err)
	}
	defer occupied.Close()

	server := NewHTTPServer(HTTPServerConfig{
		Address: occupied.Addr().String(),
		Handler: metricsMux(prometheus.NewRegistry()),
		Logger:  slog.New(slog.NewJSONHandler(io.Discard, nil)),
	})
	err = server.Serve(context.Background())
	if err == nil || !strings.Contains(err.Error(), "listening on") {
		t.Errorf("Serve on an occupied port = %v, want a listen failure", err)
	}
}
