// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/bureau-foundation/diskstream/capture"
	"github.com/bureau-foundation/diskstream/lib/process"
	"github.com/bureau-foundation/diskstream/lib/version"
	"github.com/bureau-foundation/diskstream/wire"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		process.Fatal(err)
	}
}

type replayOptions struct {
	socketPath string
	imageName  string
	rate       float64
	maxPayload int
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	var (
		opts        replayOptions
		showVersion bool
		showHelp    bool
	)
	flagSet := pflag.NewFlagSet("diskstream-replay", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&opts.socketPath, "socket", "/tmp/lophi_disk_socket", "broker producer socket")
	flagSet.StringVar(&opts.imageName, "image", "", "announce this image name instead of the recorded one")
	flagSet.Float64Var(&opts.rate, "rate", 0, "records per second (0 replays as fast as possible)")
	flagSet.IntVar(&opts.maxPayload, "max-payload", wire.MaxPayloadBytes, "largest record payload in bytes (match the broker's limits.max_payload_bytes)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.BoolVarP(&showHelp, "help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if showHelp {
		fmt.Fprintf(stdout, "diskstream-replay - play a capture file into a broker\n\nUSAGE\n    diskstream-replay [flags] CAPTURE\n\nFLAGS\n%s", flagSet.FlagUsages())
		return nil
	}
	if showVersion {
		version.Fprint(stdout, "diskstream-replay")
		return nil
	}
	if flagSet.NArg() != 1 {
		return errors.New("expected exactly one capture file")
	}
	if opts.rate < 0 {
		return fmt.Errorf("--rate must not be negative, got %v", opts.rate)
	}
	if opts.maxPayload <= 0 {
		return fmt.Errorf("--max-payload must be positive, got %d", opts.maxPayload)
	}

	summary, err := replay(ctx, flagSet.Arg(0), opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "replayed %d records (%d bytes) as %q\n", summary.records, summary.bytes, summary.imageName)
	return nil
}

type replaySummary struct {
	imageName string
	records   int
	bytes     int64
}

func replay(ctx context.Context, path string, opts replayOptions) (replaySummary, error) {
	reader, err := capture.Open(path, opts.maxPayload)
	if err != nil {
		return replaySummary{}, err
	}
	defer reader.Close()

	metadata := reader.Metadata()
	if opts.imageName != "" {
		metadata.ImageName = opts.imageName
	}
	summary := replaySummary{imageName: metadata.ImageName}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", opts.socketPath)
	if err != nil {
		return summary, fmt.Errorf("connecting to producer socket: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if _, err := conn.Write(wire.AppendMetadata(nil, metadata)); err != nil {
		return summary, fmt.Errorf("sending metadata: %w", err)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.rate), 1)
	}

	for {
		_, record, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return summary, nil
		}
		if err != nil {
			return summary, fmt.Errorf("reading record %d: %w", summary.records+1, err)
		}
		if err := limiter.Wait(ctx); err != nil {
			return summary, err
		}
		if _, err := conn.Write(record); err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			return summary, fmt.Errorf("sending record %d: %w", summary.records+1, err)
		}
		summary.records++
		summary.bytes += int64(len(record))
	}
}
