// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bureau-foundation/diskstream/wire"
)

func TestMetricsReflectBrokerState(t *testing.T) {
	t.Parallel()
	b := newTestBroker(t)
	id, _ := registerPipeProducer(t, b)
	registerPipeProducer(t, b)
	waiter, _ := pipeSubscriber(t, b)
	b.SubscribeByName(waiter, "disk3")

	b.Forward(id, testRecord(0, wire.OperationRead, 512, 0))
	b.Forward(id, testRecord(1, wire.OperationRead, 512, 0))
	b.RecordViolation("bad_operation")

	expected := `
# HELP diskstream_producers_connected Producer connections currently registered.
# TYPE diskstream_producers_connected gauge
diskstream_producers_connected 2
# HELP diskstream_subscribers_waiting Entries in the waiting-subscriber queue.
# TYPE diskstream_subscribers_waiting gauge
diskstream_subscribers_waiting 1
# HELP diskstream_records_dropped_total Stream records discarded instead of delivered.
# TYPE diskstream_records_dropped_total counter
diskstream_records_dropped_total{reason="delivery_failed"} 0
diskstream_records_dropped_total{reason="no_subscriber"} 2
`
	err := promtestutil.GatherAndCompare(b.Metrics(), strings.NewReader(expected),
		"diskstream_producers_connected",
		"diskstream_subscribers_waiting",
		"diskstream_records_dropped_total",
	)
	if err != nil {
		t.Error(err)
	}

	count, err := promtestutil.GatherAndCount(b.Metrics(), "diskstream_protocol_violations_total")
	if err != nil {
		t.Fatal(err)
	}
	if want := len(wire.ViolationReasons) + 1; count != want {
		t.Errorf("protocol_violations_total series = %d, want %d", count, want)
	}
}

func TestMetricsHandler(t *testing.T) {
	t.Parallel()
	b := newTestBroker(t)
	b.RecordViolation("all_zero")

	server := httptest.NewServer(b.MetricsHandler())
	defer server.Close()

	response, err := http.Get(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer response.Body.Close()
	body, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), `diskstream_protocol_violations_total{reason="all_zero"} 1`) {
		t.Errorf("exposition missing violation counter:\n%s", body)
	}
}
