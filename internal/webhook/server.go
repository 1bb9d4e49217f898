// Package webhook implements the inbound HTTP surface. The messaging
// platform POSTs decoded messages to /webhook; replies are returned in
// the response body, so delivery of command replies rides the webhook
// round trip while reminders go out through the platform sender.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/durkdan/messenger-gpt/internal/buildinfo"
	"github.com/durkdan/messenger-gpt/internal/command"
	"github.com/durkdan/messenger-gpt/internal/events"
)

const (
	readTimeout  = 30 * time.Second
	writeTimeout = 60 * time.Second

	// eventBufSize is the per-subscriber event queue; slow websocket
	// readers drop events rather than block publishers.
	eventBufSize = 64
)

// inboundMessage is the decoded platform envelope.
type inboundMessage struct {
	SenderID string `json:"sender_id"`
	Message  string `json:"message"`
}

// replyEnvelope is the webhook response body.
type replyEnvelope struct {
	Replies []string `json:"replies"`
}

// Server is the inbound webhook HTTP server.
type Server struct {
	address     string
	port        int
	verifyToken string
	router      *command.Router
	bus         *events.Bus
	logger      *slog.Logger
	server      *http.Server
	upgrader    websocket.Upgrader
}

// NewServer creates the webhook server. An empty verifyToken disables
// the X-Verify-Token check.
func NewServer(address string, port int, verifyToken string, router *command.Router, bus *events.Bus, logger *slog.Logger) *Server {
	return &Server{
		address:     address,
		port:        port,
		verifyToken: verifyToken,
		router:      router,
		bus:         bus,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Handler builds the route mux. Split out from Start so tests can
// drive it through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", s.handleWebhook)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /events", s.handleEvents)
	return s.withLogging(mux)
}

// Start begins serving HTTP requests. It blocks until the listener
// fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	s.logger.Info("starting webhook server", "address", s.address, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.verifyToken != "" && r.Header.Get("X-Verify-Token") != s.verifyToken {
		s.errorResponse(w, http.StatusForbidden, "invalid verify token")
		return
	}

	var msg inboundMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg.SenderID == "" {
		s.errorResponse(w, http.StatusBadRequest, "sender_id is required")
		return
	}

	requestID := uuid.New().String()
	s.bus.Publish(events.Event{
		Source: events.SourceWebhook,
		Kind:   events.KindMessageReceived,
		Data:   map[string]any{"request_id": requestID, "sender": msg.SenderID},
	})

	replies := s.router.Dispatch(r.Context(), msg.SenderID, msg.Message)

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, replyEnvelope{Replies: replies}, s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"status": "healthy",
		"uptime": buildinfo.Uptime().Round(time.Second).String(),
		"build":  buildinfo.Info(),
	}, s.logger)
}

// handleEvents upgrades to a websocket and streams operational events
// until the client goes away or the bus subscription closes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := s.bus.Subscribe(eventBufSize)
	defer sub.Close()

	// Reader goroutine: we never expect client frames, but reading is
	// required to notice the peer closing.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debug("event stream write failed", "error", err)
				return
			}
		}
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}

// writeJSON encodes v to w, logging failures at debug level. Errors
// here usually mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}
