// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/bureau-foundation/diskstream/lib/netutil"
)

// commandReadSize is the read size on subscriber connections. Each
// read is treated as a batch of complete commands: clients send short
// commands and wait for the reply, so a command is never split across
// reads in practice.
const commandReadSize = 4096

// CommandConfig configures a CommandServer.
type CommandConfig struct {
	// Address is the TCP listen address, e.g. ":31337". Required.
	Address string

	// Logger is required.
	Logger *slog.Logger
}

// CommandServer accepts subscriber connections on a TCP port and
// serves the line command protocol:
//
//	l           list connected VMs
//	w           list waiting subscribers
//	i <id>      subscribe to the VM with that registration ID
//	n <image>   subscribe to the VM with that image name, now or when it connects
//	h           help
//
// Forwarded records are written back on the same connection.
type CommandServer struct {
	broker  *Broker
	address string
	logger  *slog.Logger

	ready chan struct{}

	// addr is the resolved listen address, valid after ready is
	// closed.
	addr net.Addr

	conns       connSet
	connections sync.WaitGroup
}

// NewCommandServer creates a server for config.Address. Call Serve to
// start it.
func NewCommandServer(broker *Broker, config CommandConfig) *CommandServer {
	if config.Address == "" {
		panic("broker.CommandServer: Address is required")
	}
	if config.Logger == nil {
		panic("broker.CommandServer: Logger is required")
	}
	return &CommandServer{
		broker:  broker,
		address: config.Address,
		logger:  config.Logger,
		ready:   make(chan struct{}),
	}
}

// Ready returns a channel that is closed once the listener is bound.
func (s *CommandServer) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the resolved listen address. Only valid after Ready()
// is closed.
func (s *CommandServer) Addr() net.Addr {
	return s.addr
}

// Serve binds the command port and accepts subscribers until ctx is
// cancelled. A bind failure is returned immediately. On return every
// subscriber connection has been closed and cleaned up.
func (s *CommandServer) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.address, err)
	}
	defer listener.Close()
	s.addr = listener.Addr()
	close(s.ready)

	stop := context.AfterFunc(ctx, func() {
		listener.Close()
		s.conns.closeAll()
	})
	defer stop()

	s.logger.Info("command port listening", "address", s.addr.String())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}
		if !s.conns.add(conn) {
			conn.Close()
			continue
		}

		s.connections.Add(1)
		go func() {
			defer s.connections.Done()
			defer s.conns.remove(conn)
			s.handleSubscriber(conn)
		}()
	}

	s.conns.closeAll()
	s.connections.Wait()
	s.logger.Info("command port closed", "address", s.addr.String())
	return nil
}

func (s *CommandServer) handleSubscriber(conn net.Conn) {
	subscriber := s.broker.NewSubscriber(conn)
	logger := s.logger.With(
		"subscriber_id", subscriber.ID(),
		"remote_addr", subscriber.Address(),
	)
	logger.Debug("subscriber connected")
	defer func() {
		s.broker.DisconnectSubscriber(subscriber)
		logger.Debug("subscriber disconnected")
	}()

	buffer := make([]byte, commandReadSize)
	for {
		n, err := conn.Read(buffer)
		for _, command := range splitCommands(buffer[:n]) {
			s.dispatch(logger, subscriber, command)
		}
		if err != nil {
			if !netutil.IsExpectedCloseError(err) {
				logger.Warn("subscriber read failed", "error", err)
			}
			return
		}
	}
}

// splitCommands splits one read into commands: one per line, carriage
// returns and surrounding blanks removed, empty lines dropped. A chunk
// without a trailing newline is still a complete command.
func splitCommands(chunk []byte) []string {
	var commands []string
	for line := range bytes.SplitSeq(chunk, []byte{'\n'}) {
		command := strings.TrimSpace(string(line))
		if command != "" {
			commands = append(commands, command)
		}
	}
	return commands
}

func (s *CommandServer) dispatch(logger *slog.Logger, subscriber *Subscriber, command string) {
	broker := s.broker
	switch command[0] {
	case 'l':
		s.reply(logger, subscriber, FormatRegistrations(broker.registry.Snapshot()))

	case 'w':
		s.reply(logger, subscriber, FormatWaiting(broker.waiting.Snapshot()))

	case 'h':
		s.reply(logger, subscriber, HelpText)

	case 'i':
		argument := strings.TrimSpace(command[1:])
		id, err := strconv.ParseUint(argument, 10, 64)
		if err != nil {
			logger.Debug("ignoring subscribe with unparseable id", "argument", argument)
			return
		}
		if !broker.SubscribeByID(subscriber, VMID(id)) {
			logger.Debug("subscribe to unknown vm ignored", "vm_id", id)
			return
		}
		logger.Info("subscribed by id", "vm_id", id)

	case 'n':
		imageName := parseImageName(command[1:])
		if imageName == "" {
			logger.Debug("ignoring subscribe with empty image name")
			return
		}
		if id, bound := broker.SubscribeByName(subscriber, imageName); bound {
			logger.Info("subscribed by name", "image", imageName, "vm_id", id)
		} else {
			logger.Info("subscriber waiting for producer", "image", imageName)
		}

	default:
		logger.Debug("ignoring unknown command", "command", command)
	}
}

// parseImageName extracts the image name from the text following an
// "n" command: leading blanks are skipped and the name ends at the
// first tab.
func parseImageName(argument string) string {
	argument = strings.TrimLeft(argument, " ")
	if before, _, found := strings.Cut(argument, "\t"); found {
		argument = before
	}
	return strings.TrimSpace(argument)
}

func (s *CommandServer) reply(logger *slog.Logger, subscriber *Subscriber, text string) {
	if err := subscriber.WriteText(text); err != nil {
		logger.Debug("writing reply failed, closing subscriber", "error", err)
		subscriber.Close()
	}
}
