package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/longduongbao29/Translator-app-sub001/internal/config"
	"github.com/longduongbao29/Translator-app-sub001/internal/metrics"
	"github.com/longduongbao29/Translator-app-sub001/internal/session"
)

// HTTPServer serves the local control API.
type HTTPServer struct {
	config  config.HTTPConfig
	appCfg  *config.Config
	session *session.Session
	metrics *metrics.Metrics
	logger  *slog.Logger
	server  *http.Server
}

// NewHTTPServer creates the control API server. The metrics argument may
// be nil.
func NewHTTPServer(cfg config.HTTPConfig, appCfg *config.Config, sess *session.Session,
	m *metrics.Metrics, logger *slog.Logger) *HTTPServer {

	if logger == nil {
		logger = slog.Default()
	}

	s := &HTTPServer{
		config:  cfg,
		appCfg:  appCfg,
		session: sess,
		metrics: m,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.withMetrics("/health", s.handleHealth))
	mux.HandleFunc("/stats", s.withMetrics("/stats", s.handleStats))
	mux.HandleFunc("/config", s.withMetrics("/config", s.handleConfig))
	mux.HandleFunc("/sensitivity", s.withMetrics("/sensitivity", s.handleSensitivity))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/", s.withMetrics("/", s.handleRoot))

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

// Start begins serving. It returns immediately; serve errors are logged.
func (s *HTTPServer) Start() error {
	s.logger.Info("HTTP server starting", "address", s.server.Addr)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server failed", "error", err)
		}
	}()

	return nil
}

// Stop shuts the server down gracefully.
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("HTTP server stopping")
	return s.server.Shutdown(ctx)
}

// statusRecorder captures the response code for request metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *HTTPServer) withMetrics(path string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		handler(recorder, r)

		if s.metrics != nil {
			s.metrics.RecordHTTPRequest(r.Method, path, recorder.status, time.Since(start))
		}
	}
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.session.GetStats())
}

func (s *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	// The API key never leaves the process.
	sanitized := *s.appCfg
	sanitized.Transport.APIKey = ""

	s.writeJSON(w, http.StatusOK, map[string]any{
		"capture":   sanitized.Capture,
		"vad":       sanitized.VAD,
		"segmenter": sanitized.Segmenter,
		"transport": sanitized.Transport,
	})
}

func (s *HTTPServer) handleSensitivity(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, map[string]int{
			"sensitivity": s.session.Sensitivity(),
		})

	case http.MethodPut, http.MethodPost:
		var body struct {
			Sensitivity int `json:"sensitivity"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if err := s.session.SetSensitivity(body.Sensitivity); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		s.logger.Info("Sensitivity updated", "sensitivity", body.Sensitivity)
		s.writeJSON(w, http.StatusOK, map[string]int{
			"sensitivity": body.Sensitivity,
		})

	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"service": "audio-segmenter",
		"endpoints": []string{
			"/health", "/stats", "/config", "/sensitivity", "/metrics",
		},
	})
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
