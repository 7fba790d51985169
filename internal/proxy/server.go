// MIT License
//
// Copyright (c) 2026 jnakagawa
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
package proxy

import (
	"bufio"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/jnakagawa/loggy/internal/certs"
)

// connState tracks where a CONNECT connection is in its lifecycle.
type connState int

const (
	stateAccepted connState = iota
	stateHandshaking
	stateMITMing
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateAccepted:
		return "accepted"
	case stateHandshaking:
		return "handshaking"
	case stateMITMing:
		return "mitming"
	case stateClosed:
		return "closed"
	}
	return "unknown"
}

// Server is the MITM forward proxy: plain HTTP requests are relayed as-is,
// CONNECT tunnels are terminated with a minted leaf certificate so the
// inner requests can be inspected before being re-originated upstream.
type Server struct {
	addr        string
	signer      *certs.Signer
	inspector   *Inspector
	idleTimeout time.Duration
	logger      *pterm.Logger

	transport *http.Transport

	listener net.Listener

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// NewServer wires a proxy listener. Nothing is bound until ListenAndServe.
func NewServer(addr string, signer *certs.Signer, inspector *Inspector, idleTimeout time.Duration, logger *pterm.Logger) *Server {
	return &Server{
		addr:        addr,
		signer:      signer,
		inspector:   inspector,
		idleTimeout: idleTimeout,
		logger:      logger,
		conns:       make(map[net.Conn]struct{}),
		transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			IdleConnTimeout:       90 * time.Second,
			MaxIdleConnsPerHost:   4,
			Proxy:                 nil,
		},
	}
}

// ListenAndServe binds the proxy port and accepts until Shutdown. A bind
// failure is returned to the caller and is fatal at startup.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("proxy listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.logger.Info("MITM proxy listening", s.logger.Args("addr", s.addr))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("Accept failed", s.logger.Args("error", err))
			continue
		}
		s.track(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handleConn(conn)
		}()
	}
}

// Shutdown closes the listener, waits up to grace for in-flight
// connections, then force-closes whatever is left.
func (s *Server) Shutdown(grace time.Duration) {
	if s.listener != nil {
		s.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		s.mu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
		<-done
	}

	s.transport.CloseIdleConnections()
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
	reader := bufio.NewReader(conn)
	req, err := http.ReadRequest(reader)
	if err != nil {
		return
	}

	if req.Method == http.MethodConnect {
		s.handleConnect(conn, req)
		return
	}
	s.handlePlain(conn, reader, req)
}

// handlePlain services proxy-form HTTP requests on one connection until
// the client stops sending.
func (s *Server) handlePlain(conn net.Conn, reader *bufio.Reader, req *http.Request) {
	for {
		if !req.URL.IsAbs() {
			req.URL.Scheme = "http"
			req.URL.Host = req.Host
		}

		s.inspector.InspectRequest(req)

		if !s.roundTrip(conn, req) {
			return
		}

		conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		var err error
		req, err = http.ReadRequest(reader)
		if err != nil {
			return
		}
	}
}

// handleConnect MITMs an HTTPS tunnel: acknowledge, handshake with a
// minted leaf, then service inner requests until either side gives up.
func (s *Server) handleConnect(conn net.Conn, req *http.Request) {
	state := stateAccepted
	defer func() {
		s.logger.Trace("Tunnel closed",
			s.logger.Args("host", req.Host, "last_state", state.String()))
		state = stateClosed
	}()

	host := req.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "443")
	}
	hostname, _, _ := net.SplitHostPort(host)

	leaf, err := s.signer.CertFor(hostname)
	if err != nil {
		// Leaf minting failures fail this connection only.
		s.logger.Warn("Leaf mint failed", s.logger.Args("host", hostname, "error", err))
		conn.Write([]byte("HTTP/1.1 502 Bad Gateway\r\n\r\n"))
		return
	}

	if _, err := conn.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
		return
	}

	state = stateHandshaking
	tlsConn := tls.Server(conn, &tls.Config{
		Certificates: []tls.Certificate{*leaf},
		MinVersion:   tls.VersionTLS12,
		GetCertificate: func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
			// Prefer the SNI the client actually sent over the CONNECT
			// target; they can differ behind shared frontends.
			if hello.ServerName != "" && hello.ServerName != hostname {
				return s.signer.CertFor(hello.ServerName)
			}
			return leaf, nil
		},
	})
	tlsConn.SetReadDeadline(time.Now().Add(s.idleTimeout))
	if err := tlsConn.Handshake(); err != nil {
		s.logger.Debug("TLS handshake failed", s.logger.Args("host", hostname, "error", err))
		return
	}
	defer tlsConn.Close()

	state = stateMITMing
	reader := bufio.NewReader(tlsConn)
	for {
		tlsConn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		inner, err := http.ReadRequest(reader)
		if err != nil {
			if err != io.EOF {
				s.logger.Trace("Inner read ended", s.logger.Args("host", hostname, "error", err))
			}
			return
		}

		inner.URL.Scheme = "https"
		inner.URL.Host = inner.Host
		if inner.URL.Host == "" {
			inner.URL.Host = hostname
			inner.Host = hostname
		}

		s.inspector.InspectRequest(inner)

		if !s.roundTrip(tlsConn, inner) {
			return
		}
	}
}

// roundTrip forwards one request upstream and writes the response back.
// Returns false when the connection can no longer be used.
func (s *Server) roundTrip(w net.Conn, req *http.Request) bool {
	outReq := req.Clone(req.Context())
	outReq.RequestURI = ""
	stripHopHeaders(outReq.Header)

	resp, err := s.transport.RoundTrip(outReq)
	if err != nil {
		s.logger.Debug("Upstream round trip failed",
			s.logger.Args("url", req.URL.String(), "error", err))
		w.Write([]byte("HTTP/1.1 502 Bad Gateway\r\n\r\n"))
		return false
	}
	defer resp.Body.Close()

	if err := resp.Write(w); err != nil {
		return false
	}
	return resp.StatusCode != http.StatusSwitchingProtocols
}

// stripHopHeaders removes proxy-hop headers that must not travel upstream.
func stripHopHeaders(h http.Header) {
	for _, name := range []string{"Proxy-Connection", "Proxy-Authorization", "Proxy-Authenticate"} {
		h.Del(name)
	}
	if strings.EqualFold(h.Get("Connection"), "close") {
		h.Del("Connection")
	}
}
