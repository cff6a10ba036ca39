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

package scramblesuit

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/Jigsaw-Code/outline-sdk/transport"
	"github.com/Jigsaw-Code/outline-ticket/ticket"
	"github.com/stretchr/testify/require"
)

type resumeResult struct {
	res  *Resumption
	rest []byte
	err  error
}

// startResumptionListener accepts one connection and reads a resumption request from it.
// Anything after the request is echoed back.
func startResumptionListener(t *testing.T, server *Server) (net.Listener, <-chan resumeResult) {
	listener, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })
	results := make(chan resumeResult, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			results <- resumeResult{err: err}
			return
		}
		defer conn.Close()
		res, rest, err := server.ReadResumption(conn)
		results <- resumeResult{res, rest, err}
		if err == nil {
			conn.Write(rest)
			io.Copy(conn, struct{ io.Reader }{conn})
		}
	}()
	return listener, results
}

func TestResumptionStreamDialer(t *testing.T) {
	clock := &testClock{now: testNow}
	server := newTestServer(t, clock, nil)
	client := newTestClient(clock)
	listener, results := startResumptionListener(t, server)
	addr := listener.Addr().String()

	payload, err := server.IssueTicketAndKey()
	require.NoError(t, err)
	require.NoError(t, client.StoreNewTicket(addr, payload))

	dialer, err := NewResumptionStreamDialer(&transport.TCPDialer{}, client)
	require.NoError(t, err)
	conn, err := dialer.DialStream(context.Background(), addr)
	require.NoError(t, err)
	defer conn.Close()

	rconn, ok := conn.(*ResumptionConn)
	require.True(t, ok)
	require.NotNil(t, rconn.Ticket)
	require.Equal(t, payload[:32], rconn.Ticket.MasterKey)

	_, err = conn.Write([]byte("hello"))
	require.NoError(t, err)

	result := <-results
	require.NoError(t, result.err)
	require.Equal(t, rconn.Ticket.MasterKey, result.res.State.MasterKey[:])

	// Any bytes that arrived with the request come back first, followed by the rest.
	echo := make([]byte, 5)
	_, err = io.ReadFull(conn, echo)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), echo)

	stored, err := client.RedeemTicket(addr)
	require.NoError(t, err)
	require.Nil(t, stored, "ticket must be consumed by the dial")
}

// startSinkListener accepts one connection and reads it to the end. The returned channel
// yields everything the client sent.
func startSinkListener(t *testing.T) (net.Listener, <-chan []byte) {
	listener, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })
	received := make(chan []byte, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			received <- nil
			return
		}
		defer conn.Close()
		data, _ := io.ReadAll(conn)
		received <- data
	}()
	return listener, received
}

func TestResumptionStreamDialer_NoTicket(t *testing.T) {
	listener, received := startSinkListener(t)

	client := NewClient(ClientOptions{Jar: failingJar{errors.New("jar unavailable")}})
	dialer, err := NewResumptionStreamDialer(&transport.TCPDialer{}, client)
	require.NoError(t, err)
	conn, err := dialer.DialStream(context.Background(), listener.Addr().String())
	require.NoError(t, err)
	require.Nil(t, conn.(*ResumptionConn).Ticket)
	conn.Close()
	require.Empty(t, <-received)
}

func TestResumptionStreamDialer_UnusableTicket(t *testing.T) {
	listener, received := startSinkListener(t)
	addr := listener.Addr().String()

	jar := NewMemoryTicketJar()
	require.NoError(t, jar.Put(addr, &StoredTicket{
		MasterKey:  make([]byte, ticket.MasterKeyLength),
		Ticket:     make([]byte, ticket.Length-1),
		ReceivedAt: time.Now(),
	}))
	client := NewClient(ClientOptions{Jar: jar})
	dialer, err := NewResumptionStreamDialer(&transport.TCPDialer{}, client)
	require.NoError(t, err)
	conn, err := dialer.DialStream(context.Background(), addr)
	require.NoError(t, err)
	require.Nil(t, conn.(*ResumptionConn).Ticket)
	conn.Close()
	require.Empty(t, <-received, "nothing is sent for an unusable ticket")

	stored, err := client.RedeemTicket(addr)
	require.NoError(t, err)
	require.Nil(t, stored, "the unusable ticket is dropped")
}

func TestResumptionStreamDialer_DialFailureKeepsTicket(t *testing.T) {
	clock := &testClock{now: testNow}
	client := newTestClient(clock)
	require.NoError(t, client.StoreNewTicket("example.com:443", make([]byte, NewTicketLength)))

	dialErr := errors.New("network unreachable")
	dialer, err := NewResumptionStreamDialer(transport.FuncStreamDialer(func(ctx context.Context, addr string) (transport.StreamConn, error) {
		return nil, dialErr
	}), client)
	require.NoError(t, err)
	_, err = dialer.DialStream(context.Background(), "example.com:443")
	require.ErrorIs(t, err, dialErr)

	stored, err := client.RedeemTicket("example.com:443")
	require.NoError(t, err)
	require.NotNil(t, stored)
}

func TestNewResumptionStreamDialer_Validation(t *testing.T) {
	_, err := NewResumptionStreamDialer(nil, NewClient(ClientOptions{}))
	require.Error(t, err)
	_, err = NewResumptionStreamDialer(&transport.TCPDialer{}, nil)
	require.Error(t, err)
}
