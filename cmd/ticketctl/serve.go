// Copyright 2026 The Outline Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Jigsaw-Code/outline-sdk/transport"
	"github.com/Jigsaw-Code/outline-ticket/scramblesuit"
	"github.com/Jigsaw-Code/outline-ticket/ticket"
	"github.com/Jigsaw-Code/outline-ticket/ticket/keystore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// The test server stands in for the full handshake: after the resumption attempt it always
// replies with one status byte, set if the session was resumed, and a NEW_TICKET payload.
const (
	statusFullHandshake byte = 0
	statusResumed       byte = 1
	replyLength              = 1 + scramblesuit.NewTicketLength
	handshakeTimeout         = 10 * time.Second
)

func runServe(args []string) error {
	fs, common := newFlagSet("serve", "")
	listenFlag := fs.String("listen", "", "Address to accept connections on. Overrides listen in the configuration")
	metricsFlag := fs.String("metrics", "", "Address to serve Prometheus metrics on. Overrides metrics_listen in the configuration")
	fs.Parse(args)
	cfg, err := common.load()
	if err != nil {
		return err
	}
	if *listenFlag != "" {
		cfg.Listen = *listenFlag
	}
	if *metricsFlag != "" {
		cfg.MetricsListen = *metricsFlag
	}
	if cfg.Listen == "" {
		return errors.New("a listen address is required, use -listen or listen")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := scramblesuit.NewMetrics(reg)

	keys, err := keystore.LoadOrCreate(newStore(cfg), time.Now(), keyOptions(cfg, metrics))
	if err != nil {
		return err
	}
	server, err := newServer(cfg, keys, metrics)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		httpServer := &http.Server{Addr: cfg.MetricsListen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			slog.Info("Serving metrics", "address", cfg.MetricsListen)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
		defer httpServer.Close()
	}

	listener, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		listener.Close()
	}()
	slog.Info("Accepting resumption requests", "address", listener.Addr().String(), "key_id", keys.Fingerprint())
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go handleConn(server, conn)
	}
}

func handleConn(server *scramblesuit.Server, conn net.Conn) {
	defer conn.Close()
	logger := slog.With("remote", conn.RemoteAddr().String())
	conn.SetDeadline(time.Now().Add(handshakeTimeout))

	status := statusFullHandshake
	res, _, err := server.ReadResumption(conn)
	if err != nil {
		logger.Info("Falling back to full handshake", "reason", ticket.Reason(err))
	} else {
		status = statusResumed
		logger.Info("Resumed session", "issued_at", res.State.IssuedAt())
	}
	payload, err := server.IssueTicketAndKey()
	if err != nil {
		logger.Error("Failed to issue ticket", "error", err)
		return
	}
	if _, err := conn.Write(append([]byte{status}, payload...)); err != nil {
		logger.Warn("Failed to send ticket", "error", err)
	}
}

func runDial(args []string) error {
	fs, common := newFlagSet("dial", "ADDRESS")
	jarFlag := fs.String("jar", "", "Ticket jar file. Overrides ticket_jar in the configuration")
	fs.Parse(args)
	cfg, err := common.load()
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}
	addr := fs.Arg(0)
	if *jarFlag != "" {
		cfg.TicketJar = *jarFlag
	}
	if cfg.TicketJar == "" {
		return errors.New("a ticket jar is required, use -jar or ticket_jar")
	}

	client := scramblesuit.NewClient(scramblesuit.ClientOptions{
		Jar:        scramblesuit.NewFileTicketJar(cfg.TicketJar),
		Lifetime:   cfg.TicketLifetime,
		MaxPadding: cfg.MaxPadding,
		Logger:     slog.Default(),
	})
	dialer, err := scramblesuit.NewResumptionStreamDialer(&transport.TCPDialer{}, client)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
	defer cancel()
	conn, err := dialer.DialStream(ctx, addr)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()
	sentTicket := conn.(*scramblesuit.ResumptionConn).Ticket != nil
	if err := conn.CloseWrite(); err != nil {
		return err
	}

	reply := make([]byte, replyLength)
	if _, err := io.ReadFull(conn, reply); err != nil {
		return fmt.Errorf("failed to read reply: %w", err)
	}
	if err := client.StoreNewTicket(addr, reply[1:]); err != nil {
		return err
	}
	fmt.Printf("sent_ticket: %v\n", sentTicket)
	fmt.Printf("resumed:     %v\n", reply[0] == statusResumed)
	return nil
}
