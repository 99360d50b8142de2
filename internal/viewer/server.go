// Package viewer serves the live transcript and answer feed over HTTP.
//
// GET /ws upgrades to a WebSocket and streams every bus event as a JSON
// object; any number of viewers may connect, each with an independent
// bounded queue (slow viewers lose events rather than stalling the bus).
// GET /healthz is a liveness probe and GET /metrics exposes the Prometheus
// registry.
package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/auricle-ai/auricle/internal/bus"
	"github.com/auricle-ai/auricle/internal/observe"
	"github.com/auricle-ai/auricle/internal/pipeline"
)

const (
	// clientQueueDepth bounds per-viewer undelivered events. Answer tokens
	// arrive in bursts, so this needs headroom beyond the bus default.
	clientQueueDepth = 256

	writeTimeout    = 5 * time.Second
	shutdownTimeout = 10 * time.Second
)

// streamedKinds are the bus events forwarded to viewers.
var streamedKinds = []bus.Kind{
	bus.KindTranscript,
	bus.KindQuestion,
	bus.KindAnswerToken,
	bus.KindAnswerDone,
	bus.KindError,
	bus.KindStatus,
}

// Event is the JSON wire format for one streamed bus event.
type Event struct {
	// Type mirrors the bus event kind: "transcript", "question",
	// "answer_token", "answer_done", "error", "status".
	Type string `json:"type"`

	// Text is the event payload text.
	Text string `json:"text"`

	// Reason is the flush trigger label, set on transcript events only.
	Reason string `json:"reason,omitempty"`

	// AudioSeconds is the utterance length, set on transcript events only.
	AudioSeconds float64 `json:"audio_seconds,omitempty"`

	// Time is when the event was forwarded.
	Time time.Time `json:"time"`
}

// Server exposes the viewer HTTP endpoints.
type Server struct {
	addr    string
	events  *bus.Bus
	metrics *observe.Metrics
	log     *slog.Logger
}

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithMetrics attaches a metrics recorder. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger attaches a logger. Default: [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// New creates a viewer server listening on addr once Run is called.
func New(addr string, events *bus.Bus, opts ...Option) *Server {
	s := &Server{
		addr:   addr,
		events: events,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Handler returns the HTTP handler serving all viewer routes. Exposed so
// tests can mount it on a test server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /ws", s.handleWS)
	return mux
}

// Run serves HTTP until ctx is cancelled, then drains connections for up to
// [shutdownTimeout]. Returns nil on clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info("viewer listening", "addr", s.addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("viewer: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("viewer: shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, `{"status":"ok"}`)
}

// handleWS upgrades the request and forwards bus events until the viewer
// disconnects or the server shuts down.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Viewers run on localhost desktop apps with arbitrary origins.
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "server error")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s.metrics.ViewerClients.Add(ctx, 1)
	defer s.metrics.ViewerClients.Add(context.Background(), -1)
	s.log.Info("viewer connected", "remote", r.RemoteAddr)

	out := make(chan Event, clientQueueDepth)
	var subs []*bus.Subscription
	for _, kind := range streamedKinds {
		sub := s.events.Subscribe(kind, bus.DispatchSync, func(payload any) {
			select {
			case out <- encode(kind, payload):
			default:
				// Slow viewer: shed rather than block the publisher.
			}
		})
		subs = append(subs, sub)
	}
	defer func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}()

	// Viewers never send application data; a read loop detects disconnect.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "server shutting down")
			s.log.Info("viewer disconnected", "remote", r.RemoteAddr)
			return
		case ev := <-out:
			if err := s.write(ctx, conn, ev); err != nil {
				if !errors.Is(err, context.Canceled) {
					s.log.Debug("viewer write failed", "remote", r.RemoteAddr, "err", err)
				}
				return
			}
		}
	}
}

// write marshals ev and sends it with a per-message deadline.
func (s *Server) write(ctx context.Context, conn *websocket.Conn, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

// encode maps a bus payload to the wire Event for its kind.
func encode(kind bus.Kind, payload any) Event {
	ev := Event{Type: string(kind), Time: time.Now()}
	switch v := payload.(type) {
	case pipeline.Transcript:
		ev.Text = v.Text
		ev.Reason = v.Reason.String()
		ev.AudioSeconds = v.AudioSeconds
	case error:
		ev.Text = v.Error()
	case string:
		ev.Text = v
	default:
		ev.Text = fmt.Sprint(v)
	}
	return ev
}
