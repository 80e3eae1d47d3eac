package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"hydra/internal/constants"
	"hydra/internal/httputil"
	"hydra/internal/middleware"
	"hydra/internal/models"
	"hydra/internal/service"
	"hydra/pkg/wire"

	"github.com/coder/websocket"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type Server struct {
	router  *mux.Router
	logger  *logrus.Logger
	cfg     *models.Config
	ingress *service.IngressService
	basis   *service.BasisService
	hub     *service.Hub
	limiter *RateLimiter
	server  *http.Server
}

func NewServer(cfg *models.Config, ingress *service.IngressService, basis *service.BasisService, hub *service.Hub, logger *logrus.Logger) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		logger:  logger,
		cfg:     cfg,
		ingress: ingress,
		basis:   basis,
		hub:     hub,
		limiter: NewRateLimiter(cfg.Server.RateLimitRequests, time.Duration(cfg.Server.RateLimitWindowSec)*time.Second),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	obs := middleware.Observability(s.logger)

	s.router.Handle("/health", obs(s.handleHealth())).Methods(http.MethodGet)
	s.router.Handle("/metrics", obs(s.handleMetrics())).Methods(http.MethodGet)
	s.router.Handle("/logs", obs(s.handleLogsPage())).Methods(http.MethodGet)

	// The websocket route stays outside the observability wrapper: the
	// handler hijacks the connection, which the wrapped writer cannot do.
	s.router.HandleFunc("/ws", s.handleWebsocket()).Methods(http.MethodGet)

	// Everything else is captured into the ingress log, any method.
	s.router.PathPrefix("/").Handler(obs(s.handleCapture()))
}

func (s *Server) Start() error {
	port := s.cfg.Server.Port
	if port == 0 {
		port = constants.DefaultServerPort
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.Server.IdleTimeoutSec) * time.Second,
	}

	s.logger.Infof("Starting server on port %d", port)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}

// handleCapture records the incoming request and answers with the key it
// was stored under.
func (s *Server) handleCapture() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(httputil.ClientIP(r)) {
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}

		log, err := s.ingress.Capture(r.Context(), r)
		if err != nil {
			s.logger.WithError(err).Error("Failed to capture request")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		// Each capture advances the node's event frontier.
		if _, err := s.basis.RecordLocalEvent(r.Context()); err != nil {
			s.logger.WithError(err).Warn("Failed to record basis event for capture")
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"eventId": log.EventID})
	}
}

// handleLogsPage serves the HTML listing of captured requests, newest
// first. "following" pages towards older entries, "preceding" towards
// newer ones; both carry the cursor of the row the reader came from.
func (s *Server) handleLogsPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := s.cfg.Ingress.DefaultLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			var parsed int
			if _, err := fmt.Sscanf(raw, "%d", &parsed); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		if limit > s.cfg.Ingress.MaxLimit {
			limit = s.cfg.Ingress.MaxLimit
		}

		req := &wire.FetchIngressLogsRequest{Direction: wire.Descending, Limit: limit}
		towardsNewer := false

		if token := r.URL.Query().Get("following"); token != "" {
			cursor, err := service.DecodeCursor(token)
			if err != nil {
				http.Error(w, "Invalid cursor", http.StatusBadRequest)
				return
			}
			req.Cursor = cursor
		} else if token := r.URL.Query().Get("preceding"); token != "" {
			cursor, err := service.DecodeCursor(token)
			if err != nil {
				http.Error(w, "Invalid cursor", http.StatusBadRequest)
				return
			}
			req.Cursor = cursor
			req.Direction = req.Direction.Inverse()
			towardsNewer = true
		}

		resp, err := s.ingress.Fetch(r.Context(), req)
		if err != nil {
			s.logger.WithError(err).Error("Failed to fetch ingress logs")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		items := make([]models.IngressLog, 0, len(resp.Items))
		for _, entry := range resp.Items {
			items = append(items, models.IngressLog{
				EventID:    entry.Log.EventID,
				CapturedAt: entry.Log.CapturedAt,
				RemoteAddr: entry.Log.RemoteAddr,
				Method:     entry.Log.Method,
				Host:       entry.Log.Host,
				Path:       entry.Log.Path,
				Query:      entry.Log.Query,
				Headers:    entry.Log.Headers,
				Body:       entry.Log.Body,
			})
		}

		var hasNewer, hasOlder bool
		if towardsNewer {
			// Ascending results are oldest first; flip for display.
			for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
				items[i], items[j] = items[j], items[i]
			}
			hasNewer = resp.MoreRecords
			hasOlder = true
		} else {
			hasNewer = req.Cursor != ""
			hasOlder = resp.MoreRecords
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, service.RenderIngressLogsHTML(items, resp.Limit, hasNewer, hasOlder))
	}
}

// handleWebsocket upgrades the connection and hands it to the hub, which
// serves wire protocol requests until the peer disconnects.
func (s *Server) handleWebsocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			s.logger.WithError(err).Warn("Websocket accept failed")
			return
		}
		defer conn.Close(websocket.StatusInternalError, "unexpected close")

		// Basis exchanges can exceed the library's default frame cap.
		conn.SetReadLimit(constants.WireReadLimitBytes)

		s.hub.ServeConn(r.Context(), conn, httputil.ClientIP(r))
	}
}
