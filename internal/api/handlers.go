package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MikeSquared-Agency/SaddleSum/internal/apperr"
	"github.com/MikeSquared-Agency/SaddleSum/internal/report"
	"github.com/MikeSquared-Agency/SaddleSum/internal/service"
	"github.com/MikeSquared-Agency/SaddleSum/internal/store"
	"github.com/MikeSquared-Agency/SaddleSum/internal/termdb"
)

const (
	maxEnrichBody = 16 << 20
	maxImportBody = 256 << 20
)

// Service is the part of service.Service the handlers use.
type Service interface {
	Enrich(ctx context.Context, req *service.EnrichRequest) (*store.Run, error)
	GetRun(ctx context.Context, id string) (*store.Run, error)
	ListRuns(ctx context.Context, filter store.RunFilter) ([]*store.Run, error)
	ListDatabases(ctx context.Context) ([]*store.DatabaseInfo, error)
	GetDatabase(ctx context.Context, name string) (*termdb.Info, error)
	ImportGMT(ctx context.Context, database, namespace string, r io.Reader) (*service.ImportResult, error)
	ImportAliases(ctx context.Context, database string, r io.Reader) (*service.ImportResult, error)
	DeleteDatabase(ctx context.Context, name string) error
}

type EnrichmentsHandler struct {
	svc Service
}

func NewEnrichmentsHandler(svc Service) *EnrichmentsHandler {
	return &EnrichmentsHandler{svc: svc}
}

func (h *EnrichmentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxEnrichBody)
	var req service.EnrichRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Database == "" || len(req.Weights) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "database and weights required"})
		return
	}

	run, err := h.svc.Enrich(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

func (h *EnrichmentsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := store.RunFilter{Database: r.URL.Query().Get("database")}
	if s := r.URL.Query().Get("status"); s != "" {
		status := store.RunStatus(s)
		filter.Status = &status
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		filter.Limit = n
	}

	runs, err := h.svc.ListRuns(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if runs == nil {
		runs = []*store.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *EnrichmentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	run, err := h.svc.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// Report renders a stored run as text, tab separated or JSON output.
func (h *EnrichmentsHandler) Report(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format, err := report.ParseFormat(q.Get("format"))
	if err != nil {
		writeError(w, err)
		return
	}
	run, err := h.svc.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if run.Result == nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "run has no result", "status": string(run.Status)})
		return
	}

	switch format {
	case report.FormatJSON:
		w.Header().Set("Content-Type", "application/json")
	case report.FormatTab:
		w.Header().Set("Content-Type", "text/tab-separated-values; charset=utf-8")
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.WriteHeader(http.StatusOK)

	if run.Term != "" {
		_ = report.WriteTerm(w, format, run.Database, run.Result)
		return
	}
	_ = report.WriteResults(w, format, run.Database, run.Result, report.Options{
		Warnings:   queryBool(q.Get("warnings")),
		UnknownIDs: queryBool(q.Get("unknown_ids")),
	})
}

func queryBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}

type DatabasesHandler struct {
	svc Service
}

func NewDatabasesHandler(svc Service) *DatabasesHandler {
	return &DatabasesHandler{svc: svc}
}

func (h *DatabasesHandler) List(w http.ResponseWriter, r *http.Request) {
	dbs, err := h.svc.ListDatabases(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if dbs == nil {
		dbs = []*store.DatabaseInfo{}
	}
	writeJSON(w, http.StatusOK, dbs)
}

func (h *DatabasesHandler) Get(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.GetDatabase(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// ImportNamespace takes a GMT file as the request body.
func (h *DatabasesHandler) ImportNamespace(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBody)
	res, err := h.svc.ImportGMT(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "namespace"), r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ImportAliases takes "symbol alias..." lines as the request body.
func (h *DatabasesHandler) ImportAliases(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBody)
	res, err := h.svc.ImportAliases(r.Context(), chi.URLParam(r, "name"), r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *DatabasesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteDatabase(r.Context(), chi.URLParam(r, "name")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatusCode(err)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		status = http.StatusRequestEntityTooLarge
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
