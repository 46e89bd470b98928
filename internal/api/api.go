// Package api exposes the HTTP surface of SurveyPipe: a health endpoint,
// a session inspection endpoint for operators, and the webhook that
// receives inbound Twilio WhatsApp messages.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/SurveyPipe/internal/models"
	"github.com/BTreeMap/SurveyPipe/internal/session"
)

// DefaultAddr is the default listen address for the API server.
const DefaultAddr = ":8080"

// shutdownTimeout bounds graceful shutdown of in-flight requests.
const shutdownTimeout = 10 * time.Second

// ResponseInjector feeds an inbound message into the messaging pipeline.
// Satisfied by messaging.TwilioService.
type ResponseInjector interface {
	InjectResponse(response models.Response)
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr     string
	Injector ResponseInjector
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithResponseInjector enables the Twilio webhook endpoint, routing
// inbound messages into the given injector.
func WithResponseInjector(inj ResponseInjector) Option {
	return func(o *Opts) {
		o.Injector = inj
	}
}

// Server serves the SurveyPipe HTTP API.
type Server struct {
	addr     string
	sessions session.Store
	injector ResponseInjector
	httpSrv  *http.Server
}

// NewServer creates an API server over the given session store.
func NewServer(sessions session.Store, opts ...Option) *Server {
	var o Opts
	for _, opt := range opts {
		opt(&o)
	}
	if o.Addr == "" {
		o.Addr = DefaultAddr
	}
	return &Server{
		addr:     o.Addr,
		sessions: sessions,
		injector: o.Injector,
	}
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/sessions", s.sessionHandler)
	if s.injector != nil {
		mux.HandleFunc("/webhook/twilio", s.twilioWebhookHandler)
	}

	s.httpSrv = &http.Server{Addr: s.addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API listening", "addr", s.addr)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("Server.Run: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
