package etsy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"
)

func TestOAuthServerDeliversCallback(t *testing.T) {
	server := NewOAuthServer(0, "http://localhost:3000/callback")
	if err := server.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = server.Stop(context.Background()) })

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/callback?code=abc&state=xyz", server.Port()))
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want 302", resp.StatusCode)
	}

	result, err := server.WaitForCallback(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("WaitForCallback() error = %v", err)
	}
	if result.Code != "abc" || result.State != "xyz" {
		t.Fatalf("result = %+v", result)
	}
}

func TestOAuthServerPortInUse(t *testing.T) {
	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = listener.Close() }()

	server := NewOAuthServer(listener.Addr().(*net.TCPAddr).Port, "")
	err = server.Start()
	authErr, ok := errors.AsType[*AuthenticationError](err)
	if !ok || authErr.Type != "port_in_use" {
		t.Fatalf("err = %v, want port_in_use", err)
	}
}

func TestOAuthServerTimeout(t *testing.T) {
	server := NewOAuthServer(0, "")
	_, err := server.WaitForCallback(context.Background(), 10*time.Millisecond)
	authErr, ok := errors.AsType[*AuthenticationError](err)
	if !ok || authErr.Type != "callback_timeout" {
		t.Fatalf("err = %v, want callback_timeout", err)
	}
}
