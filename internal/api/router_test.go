package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/MikeSquared-Agency/SaddleSum/internal/apperr"
	"github.com/MikeSquared-Agency/SaddleSum/internal/enrich"
	"github.com/MikeSquared-Agency/SaddleSum/internal/service"
	"github.com/MikeSquared-Agency/SaddleSum/internal/store"
	"github.com/MikeSquared-Agency/SaddleSum/internal/termdb"
)

type mockService struct {
	runs      map[string]*store.Run
	imported  []string
	lastQuery *service.EnrichRequest
}

func newMockService() *mockService {
	return &mockService{runs: make(map[string]*store.Run)}
}

func (m *mockService) Enrich(_ context.Context, req *service.EnrichRequest) (*store.Run, error) {
	m.lastQuery = req
	if req.Database != "go" {
		return nil, apperr.NotFoundf("database %s", req.Database)
	}
	if req.Statistic == "hgem" && req.RankCutoff == 0 && req.WeightCutoff == nil {
		return nil, apperr.Configf("Fisher's exact test requires a rank or weight cutoff")
	}
	run := &store.Run{
		ID:        uuid.New(),
		Database:  req.Database,
		Term:      req.Term,
		Statistic: enrich.StatWSum,
		Status:    store.RunCompleted,
		CreatedAt: time.Now(),
		Result: &enrich.Result{
			NumTerms:        2,
			NumUsedTerms:    2,
			EffectiveDBSize: 2,
			EvalueCutoff:    0.01,
			PValueCutoff:    0.005,
			MinTermSize:     3,
			Hits: []enrich.TermHit{
				{ID: "GO:0001", Namespace: "BP", Description: "signalling", Score: 12.5, NumEntities: 4, PValue: 0.001, EValue: 0.002},
			},
		},
	}
	m.runs[run.ID.String()] = run
	return run, nil
}

func (m *mockService) GetRun(_ context.Context, id string) (*store.Run, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperr.ErrInvalidInput
	}
	run, ok := m.runs[id]
	if !ok {
		return nil, apperr.NotFoundf("run %s", id)
	}
	return run, nil
}

func (m *mockService) ListRuns(_ context.Context, f store.RunFilter) ([]*store.Run, error) {
	var out []*store.Run
	for _, r := range m.runs {
		if f.Database == "" || r.Database == f.Database {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockService) ListDatabases(_ context.Context) ([]*store.DatabaseInfo, error) {
	return []*store.DatabaseInfo{{Name: "go", Namespaces: []string{"BP"}, NumTerms: 2}}, nil
}

func (m *mockService) GetDatabase(_ context.Context, name string) (*termdb.Info, error) {
	if name != "go" {
		return nil, apperr.NotFoundf("database %s", name)
	}
	return &termdb.Info{Name: "go", NumTerms: 2, Namespaces: []termdb.NamespaceInfo{{Name: "BP", NumTerms: 2}}}, nil
}

func (m *mockService) ImportGMT(_ context.Context, db, ns string, r io.Reader) (*service.ImportResult, error) {
	body, _ := io.ReadAll(r)
	m.imported = append(m.imported, db+"/"+ns+":"+string(body))
	return &service.ImportResult{Database: db, Namespace: ns, Added: strings.Count(string(body), "\n")}, nil
}

func (m *mockService) ImportAliases(_ context.Context, db string, r io.Reader) (*service.ImportResult, error) {
	body, _ := io.ReadAll(r)
	return &service.ImportResult{Database: db, Added: len(strings.Fields(string(body))) - 1}, nil
}

func (m *mockService) DeleteDatabase(_ context.Context, name string) error {
	if name != "go" {
		return apperr.NotFoundf("database %s", name)
	}
	return nil
}

func setupTestRouter() (http.Handler, *mockService) {
	ms := newMockService()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(ms, "test-token", 1000, logger), ms
}

func createRun(t *testing.T, router http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/v1/enrichments", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateEnrichment(t *testing.T) {
	router, ms := setupTestRouter()

	w := createRun(t, router, `{"database":"go","weights":[{"symbol":"TP53","weight":2.5},{"symbol":"EGFR","weight":1}],"evalue_cutoff":0.05}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var run store.Run
	if err := json.NewDecoder(w.Body).Decode(&run); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if run.ID == uuid.Nil {
		t.Error("expected run id")
	}
	if run.Result == nil || len(run.Result.Hits) != 1 || run.Result.Hits[0].ID != "GO:0001" {
		t.Errorf("unexpected result %+v", run.Result)
	}
	if ms.lastQuery.EvalueCutoff == nil || *ms.lastQuery.EvalueCutoff != 0.05 {
		t.Error("expected evalue cutoff to reach the service")
	}
	if len(ms.lastQuery.Weights) != 2 || ms.lastQuery.Weights[0].Symbol != "TP53" {
		t.Errorf("unexpected weights %+v", ms.lastQuery.Weights)
	}
}

func TestCreateEnrichmentErrors(t *testing.T) {
	router, _ := setupTestRouter()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `{`, http.StatusBadRequest},
		{"missing weights", `{"database":"go"}`, http.StatusBadRequest},
		{"unknown database", `{"database":"kegg","weights":[{"symbol":"a","weight":1}]}`, http.StatusNotFound},
		{"configuration", `{"database":"go","statistic":"hgem","weights":[{"symbol":"a","weight":1}]}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := createRun(t, router, tt.body)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestGetEnrichment(t *testing.T) {
	router, ms := setupTestRouter()
	w := createRun(t, router, `{"database":"go","weights":[{"symbol":"a","weight":1}]}`)
	var created store.Run
	json.NewDecoder(w.Body).Decode(&created)

	req := httptest.NewRequest("GET", "/api/v1/enrichments/"+created.ID.String(), nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/api/v1/enrichments/"+uuid.New().String(), nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/api/v1/enrichments/not-a-uuid", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/api/v1/enrichments?database=go", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	var runs []store.Run
	json.NewDecoder(w.Body).Decode(&runs)
	if len(runs) != len(ms.runs) {
		t.Errorf("expected %d runs, got %d", len(ms.runs), len(runs))
	}
}

func TestListEnrichmentsInvalidLimit(t *testing.T) {
	router, _ := setupTestRouter()
	req := httptest.NewRequest("GET", "/api/v1/enrichments?limit=zero", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestEnrichmentReport(t *testing.T) {
	router, _ := setupTestRouter()
	w := createRun(t, router, `{"database":"go","weights":[{"symbol":"a","weight":1}]}`)
	var created store.Run
	json.NewDecoder(w.Body).Decode(&created)

	tests := []struct {
		format      string
		contentType string
		contains    string
	}{
		{"text", "text/plain; charset=utf-8", "SADDLESUM RESULTS"},
		{"tab", "text/tab-separated-values; charset=utf-8", "GO:0001\tsignalling"},
		{"json", "application/json", `"id": "GO:0001"`},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/enrichments/"+created.ID.String()+"/report?format="+tt.format, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", w.Code)
			}
			if ct := w.Header().Get("Content-Type"); ct != tt.contentType {
				t.Errorf("expected %s, got %s", tt.contentType, ct)
			}
			if !strings.Contains(w.Body.String(), tt.contains) {
				t.Errorf("expected %q in report:\n%s", tt.contains, w.Body.String())
			}
		})
	}

	req := httptest.NewRequest("GET", "/api/v1/enrichments/"+created.ID.String()+"/report?format=xml", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown format, got %d", w.Code)
	}
}

func TestDatabases(t *testing.T) {
	router, _ := setupTestRouter()

	req := httptest.NewRequest("GET", "/api/v1/databases", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var dbs []store.DatabaseInfo
	json.NewDecoder(w.Body).Decode(&dbs)
	if len(dbs) != 1 || dbs[0].Name != "go" {
		t.Errorf("unexpected databases %+v", dbs)
	}

	req = httptest.NewRequest("GET", "/api/v1/databases/go", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	var info termdb.Info
	json.NewDecoder(w.Body).Decode(&info)
	if info.NumTerms != 2 || len(info.Namespaces) != 1 {
		t.Errorf("unexpected info %+v", info)
	}

	req = httptest.NewRequest("GET", "/api/v1/databases/kegg", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestImportRequiresAdmin(t *testing.T) {
	router, ms := setupTestRouter()
	gmt := "T1\tdesc\ta\tb\nT2\tdesc\tc\n"

	req := httptest.NewRequest("PUT", "/api/v1/databases/go/namespaces/BP", strings.NewReader(gmt))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	req = httptest.NewRequest("PUT", "/api/v1/databases/go/namespaces/BP", strings.NewReader(gmt))
	req.Header.Set("Authorization", "Bearer test-token")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res service.ImportResult
	json.NewDecoder(w.Body).Decode(&res)
	if res.Added != 2 || res.Namespace != "BP" {
		t.Errorf("unexpected import result %+v", res)
	}
	if len(ms.imported) != 1 || ms.imported[0] != "go/BP:"+gmt {
		t.Errorf("unexpected import %v", ms.imported)
	}

	req = httptest.NewRequest("PUT", "/api/v1/databases/go/aliases", strings.NewReader("TP53 p53\n"))
	req.Header.Set("Authorization", "Bearer test-token")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestDeleteDatabase(t *testing.T) {
	router, _ := setupTestRouter()

	req := httptest.NewRequest("DELETE", "/api/v1/databases/go", nil)
	req.Header.Set("Authorization", "Bearer test-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", w.Code)
	}

	req = httptest.NewRequest("DELETE", "/api/v1/databases/kegg", nil)
	req.Header.Set("Authorization", "Bearer test-token")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestMetricsRouter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "saddlesum_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()
	router := NewMetricsRouter(reg)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/metrics", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if !strings.Contains(w.Body.String(), "saddlesum_test_total 1") {
		t.Errorf("expected counter in metrics output:\n%s", w.Body.String())
	}
}
