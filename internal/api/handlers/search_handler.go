package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ghxstship/search-service/internal/application/services"
	"github.com/ghxstship/search-service/internal/domain/entities"
	"github.com/ghxstship/search-service/internal/infrastructure/observability"
	apperrors "github.com/ghxstship/search-service/pkg/errors"
)

// Session headers
const (
	HeaderSessionID = "X-Session-ID"
	HeaderUserID    = "X-User-ID"
)

// RowSearcher is the dispatcher surface the HTTP API exposes for one table
type RowSearcher interface {
	Search(ctx context.Context, opts entities.SearchOptions) (*entities.SearchResult[entities.Row], error)
	TrackClick(query, resultID string) bool
	TrackRefinement(originalQuery, refinedQuery string) bool
	MarkAbandoned(query string) bool
	GetSearchMetrics(ctx context.Context, tr *entities.TimeRange) (*entities.SearchMetrics, error)
	GetSuggestions(ctx context.Context, prefix string, limit int) ([]string, error)
}

// SearchHandler handles search-related HTTP requests
type SearchHandler struct {
	searchers map[string]RowSearcher
}

// NewSearchHandler creates a new search handler keyed by table name
func NewSearchHandler(searchers map[string]RowSearcher) *SearchHandler {
	return &SearchHandler{searchers: searchers}
}

type clickRequest struct {
	Query    string `json:"query"`
	ResultID string `json:"resultId"`
}

type refinementRequest struct {
	OriginalQuery string `json:"originalQuery"`
	RefinedQuery  string `json:"refinedQuery"`
}

type abandonmentRequest struct {
	Query string `json:"query"`
}

// Search handles POST /api/search/{table}
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	searcher, ok := h.searcher(w, r)
	if !ok {
		return
	}

	var opts entities.SearchOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := searcher.Search(withSession(r), opts)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// TrackClick handles POST /api/search/{table}/clicks
func (h *SearchHandler) TrackClick(w http.ResponseWriter, r *http.Request) {
	searcher, ok := h.searcher(w, r)
	if !ok {
		return
	}

	var req clickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" || req.ResultID == "" {
		respondWithError(w, http.StatusBadRequest, "query and resultId are required")
		return
	}

	respondWithJSON(w, http.StatusAccepted, map[string]bool{
		"recorded": searcher.TrackClick(req.Query, req.ResultID),
	})
}

// TrackRefinement handles POST /api/search/{table}/refinements
func (h *SearchHandler) TrackRefinement(w http.ResponseWriter, r *http.Request) {
	searcher, ok := h.searcher(w, r)
	if !ok {
		return
	}

	var req refinementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OriginalQuery == "" || req.RefinedQuery == "" {
		respondWithError(w, http.StatusBadRequest, "originalQuery and refinedQuery are required")
		return
	}

	respondWithJSON(w, http.StatusAccepted, map[string]bool{
		"recorded": searcher.TrackRefinement(req.OriginalQuery, req.RefinedQuery),
	})
}

// MarkAbandoned handles POST /api/search/{table}/abandonments
func (h *SearchHandler) MarkAbandoned(w http.ResponseWriter, r *http.Request) {
	searcher, ok := h.searcher(w, r)
	if !ok {
		return
	}

	var req abandonmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		respondWithError(w, http.StatusBadRequest, "query is required")
		return
	}

	respondWithJSON(w, http.StatusAccepted, map[string]bool{
		"recorded": searcher.MarkAbandoned(req.Query),
	})
}

// GetMetrics handles GET /api/search/{table}/metrics?from=&to=
// All tables record into one analytics store, so the metrics cover every
// table's searches. {table} only has to name a served table.
func (h *SearchHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	searcher, ok := h.searcher(w, r)
	if !ok {
		return
	}

	var tr *entities.TimeRange
	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	if from != "" || to != "" {
		tr = &entities.TimeRange{}
		var err error
		if from != "" {
			if tr.From, err = time.Parse(time.RFC3339, from); err != nil {
				respondWithError(w, http.StatusBadRequest, "from must be an RFC3339 timestamp")
				return
			}
		}
		if to != "" {
			if tr.To, err = time.Parse(time.RFC3339, to); err != nil {
				respondWithError(w, http.StatusBadRequest, "to must be an RFC3339 timestamp")
				return
			}
		}
	}

	metrics, err := searcher.GetSearchMetrics(r.Context(), tr)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, metrics)
}

// GetSuggestions handles GET /api/search/{table}/suggestions?prefix=&limit=
// Suggestions come from the shared analytics store, as for GetMetrics.
func (h *SearchHandler) GetSuggestions(w http.ResponseWriter, r *http.Request) {
	searcher, ok := h.searcher(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}

	suggestions, err := searcher.GetSuggestions(r.Context(), r.URL.Query().Get("prefix"), limit)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"suggestions": suggestions,
		"count":       len(suggestions),
	})
}

func (h *SearchHandler) searcher(w http.ResponseWriter, r *http.Request) (RowSearcher, bool) {
	table := r.PathValue("table")
	searcher, ok := h.searchers[table]
	if !ok {
		respondWithError(w, http.StatusNotFound, "unknown table: "+table)
		return nil, false
	}
	return searcher, true
}

func withSession(r *http.Request) context.Context {
	sessionID := r.Header.Get(HeaderSessionID)
	if sessionID == "" {
		return r.Context()
	}
	session := services.SearchSession{SessionID: sessionID}
	if userID := r.Header.Get(HeaderUserID); userID != "" {
		session.UserID = &userID
	}
	return services.WithSearchSession(r.Context(), session)
}

func respondWithAppError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		observability.LoggerFromContext(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Unhandled error")
		respondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	switch appErr.Type {
	case apperrors.ErrorTypeValidation, apperrors.ErrorTypeInvalidPattern:
		respondWithError(w, http.StatusBadRequest, appErr.Message)
	case apperrors.ErrorTypeNotFound:
		respondWithError(w, http.StatusNotFound, appErr.Message)
	case apperrors.ErrorTypeDatastore, apperrors.ErrorTypeExternal:
		respondWithError(w, http.StatusBadGateway, "search backend unavailable")
	default:
		respondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}

func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
