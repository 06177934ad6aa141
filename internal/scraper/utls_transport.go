package scraper

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/ebooklister/ebooklister/internal/config"
	"github.com/ebooklister/ebooklister/internal/util"
	tls "github.com/refraction-networking/utls"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/proxy"
)

// utlsRoundTripper speaks HTTP/2 over a uTLS connection carrying a Chrome ClientHello, for
// source sites that reject Go's default TLS fingerprint.
type utlsRoundTripper struct {
	mu          sync.Mutex
	connections map[string]*http2.ClientConn
	pending     map[string]*sync.Cond
	dialer      proxy.Dialer
}

func newUtlsRoundTripper(cfg *config.SDKConfig) *utlsRoundTripper {
	dialer, err := util.ProxyDialer(cfg)
	if err != nil {
		log.Errorf("failed to create proxy dialer for %q: %v", cfg.ProxyURL, err)
		dialer = proxy.Direct
	}
	return &utlsRoundTripper{
		connections: make(map[string]*http2.ClientConn),
		pending:     make(map[string]*sync.Cond),
		dialer:      dialer,
	}
}

// connFor returns a cached connection for host or dials one. Concurrent callers for the same
// host wait for a single dial.
func (t *utlsRoundTripper) connFor(host, addr string) (*http2.ClientConn, error) {
	t.mu.Lock()
	for {
		if conn, ok := t.connections[host]; ok && conn.CanTakeNewRequest() {
			t.mu.Unlock()
			return conn, nil
		}
		cond, busy := t.pending[host]
		if !busy {
			break
		}
		cond.Wait()
	}
	cond := sync.NewCond(&t.mu)
	t.pending[host] = cond
	t.mu.Unlock()

	conn, err := t.dial(host, addr)

	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, host)
	cond.Broadcast()
	if err != nil {
		return nil, err
	}
	t.connections[host] = conn
	return conn, nil
}

func (t *utlsRoundTripper) dial(host, addr string) (*http2.ClientConn, error) {
	raw, err := t.dialer.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	tlsConn := tls.UClient(raw, &tls.Config{ServerName: host, NextProtos: []string{"h2"}}, tls.HelloChrome_Auto)
	if err = tlsConn.Handshake(); err != nil {
		_ = raw.Close()
		return nil, err
	}
	if proto := tlsConn.ConnectionState().NegotiatedProtocol; proto != "h2" {
		_ = tlsConn.Close()
		return nil, fmt.Errorf("utls transport: %s negotiated %q, HTTP/2 required", host, proto)
	}
	conn, err := (&http2.Transport{}).NewClientConn(tlsConn)
	if err != nil {
		_ = tlsConn.Close()
		return nil, err
	}
	return conn, nil
}

// RoundTrip implements http.RoundTripper.
func (t *utlsRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return nil, fmt.Errorf("utls transport: unsupported scheme %q", req.URL.Scheme)
	}
	hostname := req.URL.Hostname()
	addr := req.URL.Host
	if !strings.Contains(addr, ":") {
		addr += ":443"
	}

	conn, err := t.connFor(hostname, addr)
	if err != nil {
		return nil, err
	}
	resp, err := conn.RoundTrip(req)
	if err != nil {
		t.mu.Lock()
		if cached, ok := t.connections[hostname]; ok && cached == conn {
			delete(t.connections, hostname)
		}
		t.mu.Unlock()
		return nil, err
	}
	return resp, nil
}
