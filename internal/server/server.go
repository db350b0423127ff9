package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"

	"advocate_dashboard/internal/airtable"
	"advocate_dashboard/internal/dashboard"
	"advocate_dashboard/internal/logger"
	"advocate_dashboard/internal/metrics"
	"advocate_dashboard/internal/models"
	"advocate_dashboard/internal/pipeline"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultHistoryLimit = 20

// History - журнал модерации. Может отсутствовать.
type History interface {
	History(ctx context.Context, articleID string, limit int) ([]models.ReviewDecision, error)
	Ping(ctx context.Context) error
}

// Server хранит зависимости HTTP-обработчиков дашборда.
type Server struct {
	dash     *dashboard.Controller
	history  History
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
}

// NewServer создаёт Server. history, m и g могут быть nil.
func NewServer(dash *dashboard.Controller, history History, m *metrics.Metrics, g prometheus.Gatherer) *Server {
	return &Server{dash: dash, history: history, metrics: m, gatherer: g}
}

// Handler собирает маршруты и middleware. Если webDir существует, статика отдаётся с корня.
func (s *Server) Handler(webDir string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/dashboard", s.GetDashboard)
	mux.HandleFunc("PUT /api/dashboard/criteria", s.SetCriteria)
	mux.HandleFunc("PUT /api/dashboard/page", s.SetPage)
	mux.HandleFunc("POST /api/dashboard/reload", s.Reload)
	mux.HandleFunc("GET /api/articles/{id}", s.GetArticle)
	mux.HandleFunc("POST /api/articles/{id}/approve", s.Approve)
	mux.HandleFunc("POST /api/articles/{id}/reject", s.Reject)
	mux.HandleFunc("GET /api/articles/{id}/history", s.GetHistory)
	mux.HandleFunc("GET /health", s.HealthCheck)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	if info, err := os.Stat(webDir); webDir != "" && err == nil && info.IsDir() {
		mux.Handle("/", http.FileServer(http.Dir(webDir)))
	}

	var handler http.Handler = mux
	handler = LoggingMiddleware(s.metrics)(handler)
	handler = RequestIDMiddleware(handler)
	return handler
}

// HealthCheck отвечает 200 OK, если журнал (при наличии) доступен, иначе 503.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if s.history != nil {
		if err := s.history.Ping(r.Context()); err != nil {
			http.Error(w, "DB unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.Write([]byte("OK"))
}

// GetDashboard возвращает снимок текущей страницы дашборда.
func (s *Server) GetDashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dash.View())
}

// SetCriteria принимает фильтры и сортировку; пересчёт выполняется с задержкой,
// поэтому ответ - 202 со снимком, где filtering=true.
func (s *Server) SetCriteria(w http.ResponseWriter, r *http.Request) {
	var c pipeline.Criteria
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid criteria: "+err.Error())
		return
	}
	if err := s.dash.SetCriteria(c); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, dashboard.ErrClosed) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, dashboard.UserMessage(err))
		return
	}
	writeJSON(w, http.StatusAccepted, s.dash.View())
}

// SetPage переключает страницу; номер ограничивается диапазоном страниц.
func (s *Server) SetPage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Page int `json:"page"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid page: "+err.Error())
		return
	}
	s.dash.SetPage(body.Page)
	writeJSON(w, http.StatusOK, s.dash.View())
}

// Reload полностью перезагружает статьи и метрики.
func (s *Server) Reload(w http.ResponseWriter, r *http.Request) {
	// загрузка доводится до конца, даже если клиент отключился
	ctx := context.WithoutCancel(r.Context())
	if err := s.dash.Load(ctx); err != nil {
		writeError(w, statusFor(err), dashboard.UserMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, s.dash.View())
}

// GetArticle возвращает статью целиком.
func (s *Server) GetArticle(w http.ResponseWriter, r *http.Request) {
	a, ok := s.dash.Article(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, dashboard.ErrUnknownArticle.Error())
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) Approve(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, models.StatusApproved)
}

func (s *Server) Reject(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, models.StatusRejected)
}

func (s *Server) mutate(w http.ResponseWriter, r *http.Request, status models.Status) {
	ctx := context.WithoutCancel(r.Context())
	a, err := s.dash.MutateStatus(ctx, r.PathValue("id"), status)
	if err != nil {
		logger.Log.WithFields(logger.Fields{
			"id":         r.PathValue("id"),
			"request_id": RequestID(r.Context()),
		}).Warnf("Status change rejected: %v", err)
		writeError(w, statusFor(err), dashboard.UserMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// GetHistory возвращает журнал решений по статье. Без журнала - пустой список.
func (s *Server) GetHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 1 {
		limit = defaultHistoryLimit
	}

	if s.history == nil {
		writeJSON(w, http.StatusOK, []models.ReviewDecision{})
		return
	}

	decisions, err := s.history.History(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		logger.Log.Errorf("Failed to read review history: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to read review history")
		return
	}
	writeJSON(w, http.StatusOK, decisions)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, dashboard.ErrMutationInFlight):
		return http.StatusConflict
	case errors.Is(err, dashboard.ErrUnknownArticle):
		return http.StatusNotFound
	case errors.Is(err, dashboard.ErrInvalidStatus):
		return http.StatusBadRequest
	case errors.Is(err, dashboard.ErrClosed):
		return http.StatusServiceUnavailable
	}

	switch airtable.KindOf(err) {
	case airtable.KindConfig:
		return http.StatusServiceUnavailable
	case airtable.KindAuth, airtable.KindPermission, airtable.KindNotFound, airtable.KindAPI:
		return http.StatusBadGateway
	case airtable.KindTransport:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
