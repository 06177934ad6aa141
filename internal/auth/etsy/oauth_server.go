package etsy

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// OAuthServer is the local HTTP listener that receives the provider redirect during CLI login.
type OAuthServer struct {
	server     *http.Server
	listener   net.Listener
	port       int
	path       string
	resultChan chan *OAuthResult
	errorChan  chan error
	mu         sync.Mutex
	running    bool
}

// OAuthResult carries the callback parameters, or the provider error.
type OAuthResult struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// NewOAuthServer creates a callback server on port that answers on the path of redirectURI.
func NewOAuthServer(port int, redirectURI string) *OAuthServer {
	path := "/callback"
	if parsed, err := url.Parse(redirectURI); err == nil && parsed.Path != "" {
		path = parsed.Path
	}
	return &OAuthServer{
		port:       port,
		path:       path,
		resultChan: make(chan *OAuthResult, 1),
		errorChan:  make(chan error, 1),
	}
}

// Start binds the port and serves callbacks in the background.
// A busy port is reported as an AuthenticationError of type port_in_use.
func (s *OAuthServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server is already running")
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return NewAuthenticationError(ErrPortInUse, err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleCallback)
	mux.HandleFunc("/success", s.handleSuccess)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	s.running = true

	go func() {
		if errServe := s.server.Serve(listener); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			select {
			case s.errorChan <- NewAuthenticationError(ErrServerStartFailed, errServe):
			default:
			}
		}
	}()
	return nil
}

// Port returns the bound port, resolving an ephemeral :0 after Start.
func (s *OAuthServer) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
			return addr.Port
		}
	}
	return s.port
}

// Stop gracefully shuts the server down.
func (s *OAuthServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.server == nil {
		return nil
	}
	log.Debug("Stopping OAuth callback server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := s.server.Shutdown(shutdownCtx)
	s.running = false
	s.server = nil
	s.listener = nil
	return err
}

// WaitForCallback blocks until a callback arrives, the server fails, timeout elapses or ctx ends.
func (s *OAuthServer) WaitForCallback(ctx context.Context, timeout time.Duration) (*OAuthResult, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-s.resultChan:
		return result, nil
	case err := <-s.errorChan:
		return nil, err
	case <-timer.C:
		return nil, NewAuthenticationError(ErrCallbackTimeout, fmt.Errorf("no callback within %s", timeout))
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *OAuthServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	result := &OAuthResult{
		Code:             query.Get("code"),
		State:            query.Get("state"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	}
	s.sendResult(result)

	if result.Error != "" {
		log.Errorf("OAuth error received: %s", result.Error)
		msg := result.Error
		if result.ErrorDescription != "" {
			msg += ": " + result.ErrorDescription
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = fmt.Fprintf(w, loginFailureHTML, html.EscapeString(msg))
		return
	}
	http.Redirect(w, r, "/success", http.StatusFound)
}

func (s *OAuthServer) handleSuccess(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(loginSuccessHTML)); err != nil {
		log.Errorf("Failed to write success page: %v", err)
	}
}

func (s *OAuthServer) sendResult(result *OAuthResult) {
	select {
	case s.resultChan <- result:
	default:
		log.Warn("OAuth result channel is full, result dropped")
	}
}
