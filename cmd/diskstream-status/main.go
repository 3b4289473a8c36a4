// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/diskstream/broker"
	"github.com/bureau-foundation/diskstream/lib/process"
	"github.com/bureau-foundation/diskstream/lib/service"
	"github.com/bureau-foundation/diskstream/lib/version"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		process.Fatal(err)
	}
}

type options struct {
	address     string
	adminSocket string
	timeout     time.Duration
	styled      bool
}

func run(args []string, stdout io.Writer) error {
	var (
		opts        options
		showVersion bool
		showHelp    bool
	)

	flagSet := pflag.NewFlagSet("diskstream-status", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&opts.address, "address", "127.0.0.1:31337", "broker command port")
	flagSet.StringVar(&opts.adminSocket, "admin-socket", "", "broker admin socket; adds traffic counters when set")
	flagSet.DurationVar(&opts.timeout, "timeout", time.Second, "wait this long for each reply")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.BoolVarP(&showHelp, "help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if showHelp {
		fmt.Fprintf(stdout, "diskstream-status - show connected VMs and waiting subscribers\n\nFLAGS\n%s", flagSet.FlagUsages())
		return nil
	}
	if showVersion {
		version.Fprint(stdout, "diskstream-status")
		return nil
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", flagSet.Args())
	}

	if file, ok := stdout.(*os.File); ok {
		opts.styled = term.IsTerminal(int(file.Fd()))
	}
	return printStatus(stdout, opts)
}

func printStatus(stdout io.Writer, opts options) error {
	conn, err := net.DialTimeout("tcp", opts.address, opts.timeout)
	if err != nil {
		return fmt.Errorf("connecting to broker at %s: %w", opts.address, err)
	}
	defer conn.Close()

	vms, err := query(conn, "l", opts.timeout)
	if err != nil {
		return err
	}
	waiting, err := query(conn, "w", opts.timeout)
	if err != nil {
		return err
	}

	heading := func(text string) string { return text }
	if opts.styled {
		style := lipgloss.NewStyle().Bold(true)
		heading = func(text string) string { return style.Render(text) }
	}

	fmt.Fprintln(stdout, heading("Connected VMs"))
	fmt.Fprint(stdout, vms)
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, heading("Waiting subscribers"))
	fmt.Fprint(stdout, waiting)

	if opts.adminSocket == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()
	var status broker.StatusResponse
	if err := service.NewClient(opts.adminSocket).Call(ctx, "status", nil, &status); err != nil {
		return fmt.Errorf("querying admin socket: %w", err)
	}
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, heading("Traffic"))
	return writeCounters(stdout, status)
}

// query sends one command and collects the reply. The command port
// does not frame replies, so the reply is everything that arrives
// before the connection goes quiet for timeout.
func query(conn net.Conn, command string, timeout time.Duration) (string, error) {
	if _, err := io.WriteString(conn, command+"\n"); err != nil {
		return "", fmt.Errorf("sending %q: %w", command, err)
	}

	var reply strings.Builder
	buffer := make([]byte, 4096)
	for {
		conn.SetReadDeadline(time.Now().Add(timeout))
		n, err := conn.Read(buffer)
		reply.Write(buffer[:n])
		if err == nil {
			continue
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			break
		}
		if errors.Is(err, io.EOF) {
			break
		}
		return "", fmt.Errorf("reading reply to %q: %w", command, err)
	}
	if reply.Len() == 0 {
		return "", fmt.Errorf("no reply to %q within %v", command, timeout)
	}
	return reply.String(), nil
}

func writeCounters(w io.Writer, status broker.StatusResponse) error {
	writer := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	fmt.Fprintf(writer, "UPTIME\t%s\n", (time.Duration(status.UptimeSeconds) * time.Second).String())
	fmt.Fprintf(writer, "PRODUCERS\t%d\n", status.ProducersConnected)
	fmt.Fprintf(writer, "WAITING\t%d\n", status.SubscribersWaiting)
	fmt.Fprintf(writer, "RECORDS FORWARDED\t%d\n", status.RecordsForwarded)
	fmt.Fprintf(writer, "BYTES FORWARDED\t%d\n", status.BytesForwarded)
	for _, reason := range slices.Sorted(maps.Keys(status.RecordsDropped)) {
		fmt.Fprintf(writer, "DROPPED (%s)\t%d\n", reason, status.RecordsDropped[reason])
	}
	for _, reason := range slices.Sorted(maps.Keys(status.ProtocolViolations)) {
		if count := status.ProtocolViolations[reason]; count > 0 {
			fmt.Fprintf(writer, "VIOLATIONS (%s)\t%d\n", reason, count)
		}
	}
	return writer.Flush()
}

