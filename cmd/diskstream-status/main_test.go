// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/diskstream/broker"
	"github.com/bureau-foundation/diskstream/lib/service"
	"github.com/bureau-foundation/diskstream/lib/testutil"
)

type testBroker struct {
	core        *broker.Broker
	address     string
	adminSocket string
}

func startBroker(t *testing.T) testBroker {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	core := broker.New(broker.Config{Logger: logger, SendTimeout: time.Second})

	command := broker.NewCommandServer(core, broker.CommandConfig{Address: "127.0.0.1:0", Logger: logger})
	admin := service.NewSocketServer(filepath.Join(testutil.SocketDir(t), "admin.sock"), logger)
	core.RegisterActions(admin)

	ctx, cancel := context.WithCancel(context.Background())
	commandDone := make(chan error, 1)
	adminDone := make(chan error, 1)
	go func() { commandDone <- command.Serve(ctx) }()
	go func() { adminDone <- admin.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		testutil.RequireReceive(t, commandDone, testutil.Timeout, "command server shutdown")
		testutil.RequireReceive(t, adminDone, testutil.Timeout, "admin server shutdown")
	})

	testutil.RequireClosed(t, command.Ready(), testutil.Timeout, "command server ready")
	testutil.RequireClosed(t, admin.Ready(), testutil.Timeout, "admin server ready")
	return testBroker{core: core, address: command.Addr().String(), adminSocket: admin.SocketPath()}
}

func TestPrintStatus(t *testing.T) {
	target := startBroker(t)

	waiter, err := net.Dial("tcp", target.address)
	if err != nil {
		t.Fatal(err)
	}
	defer waiter.Close()
	if _, err := io.WriteString(waiter, "n disk3\n"); err != nil {
		t.Fatal(err)
	}
	testutil.Eventually(t, testutil.Timeout, func() bool {
		return target.core.Waiting().Len() == 1
	}, "subscriber queued")

	var output bytes.Buffer
	err = printStatus(&output, options{
		address:     target.address,
		adminSocket: target.adminSocket,
		timeout:     200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("printStatus: %v", err)
	}

	got := output.String()
	for _, want := range []string{
		"Connected VMs\n ID : Status : HDD Filename\n",
		"Waiting subscribers\n SOCK :  HDD Filename\n",
		" : disk3\n",
		"Traffic\n",
		"DROPPED (no_subscriber)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if !regexp.MustCompile(`(?m)^WAITING +1$`).MatchString(got) {
		t.Errorf("traffic table does not show one waiting subscriber:\n%s", got)
	}
	if strings.Contains(got, "\x1b[") {
		t.Error("escape sequences in unstyled output")
	}
}

func TestPrintStatusWithoutAdmin(t *testing.T) {
	target := startBroker(t)

	var output bytes.Buffer
	if err := printStatus(&output, options{address: target.address, timeout: 200 * time.Millisecond}); err != nil {
		t.Fatalf("printStatus: %v", err)
	}
	if strings.Contains(output.String(), "Traffic") {
		t.Error("traffic section printed without --admin-socket")
	}
}

func TestPrintStatusBrokerDown(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	address := listener.Addr().String()
	listener.Close()

	err = printStatus(io.Discard, options{address: address, timeout: 200 * time.Millisecond})
	if err == nil || !strings.Contains(err.Error(), "connecting to broker") {
		t.Fatalf("printStatus = %v, want connection error", err)
	}
}

func TestWriteCounters(t *testing.T) {
	var output bytes.Buffer
	err := writeCounters(&output, broker.StatusResponse{
		UptimeSeconds:      90,
		ProducersConnected: 2,
		RecordsForwarded:   10,
		BytesForwarded:     5320,
		RecordsDropped:     map[string]uint64{"no_subscriber": 4, "delivery_failed": 1},
		ProtocolViolations: map[string]uint64{"all_zero": 0, "bad_operation": 3},
	})
	if err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSuffix(output.String(), "\n"), "\n")
	wantPrefixes := []string{
		"UPTIME ", "PRODUCERS ", "WAITING ", "RECORDS FORWARDED ", "BYTES FORWARDED ",
		"DROPPED (delivery_failed) ", "DROPPED (no_subscriber) ", "VIOLATIONS (bad_operation) ",
	}
	if len(lines) != len(wantPrefixes) {
		t.Fatalf("got %d lines, want %d:\n%s", len(lines), len(wantPrefixes), output.String())
	}
	for i, prefix := range wantPrefixes {
		if !strings.HasPrefix(lines[i], prefix) {
			t.Errorf("line %d = %q, want prefix %q", i, lines[i], prefix)
		}
	}
	if !strings.HasSuffix(lines[0], " 1m30s") {
		t.Errorf("uptime line = %q", lines[0])
	}
	if !strings.HasSuffix(lines[7], " 3") {
		t.Errorf("violations line = %q", lines[7])
	}
}

func TestRunRejectsArguments(t *testing.T) {
	err := run([]string{"extra"}, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "unexpected arguments") {
		t.Fatalf("run = %v, want argument error", err)
	}
}
