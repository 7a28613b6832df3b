package qc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/LabGraphTeam/labgraph/internal/auth"
	"github.com/LabGraphTeam/labgraph/pkg/models"
)

// newTestMux mounts the module routes and authenticates every request as a
// user with the given role.
func newTestMux(m *Module, role auth.Role) http.Handler {
	mux := http.NewServeMux()
	for _, rt := range m.Routes() {
		mux.HandleFunc(rt.Method+" /api/v1/qc"+rt.Path, rt.Handler)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := &auth.Claims{UserID: "u1", Username: "tester", Role: string(role)}
		mux.ServeHTTP(w, r.WithContext(auth.ContextWithUser(r.Context(), claims)))
	})
}

func serve(h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		_ = json.NewEncoder(&buf).Encode(b)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) models.APIProblem {
	t.Helper()
	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("Content-Type = %q, want application/problem+json", ct)
	}
	var p models.APIProblem
	if err := json.NewDecoder(w.Body).Decode(&p); err != nil {
		t.Fatalf("decode problem: %v", err)
	}
	return p
}

func TestHandleIngest(t *testing.T) {
	m, _ := newTestModule(t)
	h := newTestMux(m, auth.RoleAnalyst)

	w := serve(h, http.MethodPost, "/api/v1/qc/measurements", []models.MeasurementInput{
		input("glucose", "normal", 120.5, 118.3, 2.5),
		input("glucose", "normal", 1, 118.3, 0),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body: %s", w.Code, w.Body.String())
	}
	var res models.IngestResult
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Accepted) != 1 || res.Accepted[0].RuleCode != "+1s" {
		t.Errorf("accepted = %+v, want one +1s record", res.Accepted)
	}
	if len(res.Rejected) != 1 || res.Rejected[0].Index != 1 {
		t.Errorf("rejected = %+v, want index 1", res.Rejected)
	}
}

func TestHandleIngest_BadRequests(t *testing.T) {
	m, _ := newTestModule(t)
	h := newTestMux(m, auth.RoleAdmin)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"analyte":`},
		{"object instead of array", `{"analyte":"glucose"}`},
		{"empty array", `[]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(h, http.MethodPost, "/api/v1/qc/measurements", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			if p := decodeProblem(t, w); p.Type != "https://labgraph.dev/problems/bad-request" {
				t.Errorf("Type = %q", p.Type)
			}
		})
	}
}

func TestHandleIngest_ViewerForbidden(t *testing.T) {
	m, _ := newTestModule(t)
	h := newTestMux(m, auth.RoleViewer)

	w := serve(h, http.MethodPost, "/api/v1/qc/measurements", []models.MeasurementInput{
		input("glucose", "normal", 120.5, 118.3, 2.5),
	})
	if w.Code != http.StatusForbidden {
		t.Errorf("viewer ingest: status = %d, want 403", w.Code)
	}

	w = serve(h, http.MethodGet, "/api/v1/qc/measurements", nil)
	if w.Code != http.StatusOK {
		t.Errorf("viewer list: status = %d, want 200", w.Code)
	}
}

func TestHandleMeasurementLifecycle(t *testing.T) {
	m, _ := newTestModule(t)
	h := newTestMux(m, auth.RoleAnalyst)
	recs := ingestSeries(t, m, "glucose", "normal", 118.3, 2.5, 120.5)
	id := recs[0].ID

	w := serve(h, http.MethodGet, "/api/v1/qc/measurements/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: status = %d", w.Code)
	}

	w = serve(h, http.MethodPut, "/api/v1/qc/measurements/"+id+"/reference", UpdateReferenceRequest{TargetMean: 114, TargetSD: 2})
	if w.Code != http.StatusOK {
		t.Fatalf("update reference: status = %d; body: %s", w.Code, w.Body.String())
	}
	var updated models.ControlRecord
	if err := json.NewDecoder(w.Body).Decode(&updated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if updated.RuleCode != "+3s" {
		t.Errorf("RuleCode = %q, want +3s", updated.RuleCode)
	}

	w = serve(h, http.MethodPut, "/api/v1/qc/measurements/"+id+"/reference", UpdateReferenceRequest{TargetMean: 114, TargetSD: -1})
	if w.Code != http.StatusBadRequest {
		t.Errorf("negative sd: status = %d, want 400", w.Code)
	}

	w = serve(h, http.MethodDelete, "/api/v1/qc/measurements/"+id, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("delete: status = %d, want 204", w.Code)
	}
	w = serve(h, http.MethodGet, "/api/v1/qc/measurements/"+id, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete: status = %d, want 404", w.Code)
	}
}

func TestHandleListMeasurements_Filters(t *testing.T) {
	m, _ := newTestModule(t)
	h := newTestMux(m, auth.RoleViewer)
	ingestSeries(t, m, "glucose", "normal", 100, 2, 101, 105, 93)

	w := serve(h, http.MethodGet, "/api/v1/qc/measurements?violations=true", nil)
	var recs []models.ControlRecord
	if err := json.NewDecoder(w.Body).Decode(&recs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("violations = %d, want 2", len(recs))
	}

	for _, q := range []string{"violations=maybe", "from=yesterday", "from=2026-03-10T00:00:00Z&to=2026-03-09T00:00:00Z"} {
		w = serve(h, http.MethodGet, "/api/v1/qc/measurements?"+q, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, w.Code)
		}
	}

	w = serve(h, http.MethodGet, "/api/v1/qc/measurements?analyte=sodium", nil)
	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Errorf("empty result body = %s, want []", body)
	}
}

func TestHandleStatistics(t *testing.T) {
	m, _ := newTestModule(t)
	h := newTestMux(m, auth.RoleViewer)

	w := serve(h, http.MethodGet, "/api/v1/qc/statistics?level=normal", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing analyte: status = %d, want 400", w.Code)
	}

	w = serve(h, http.MethodGet, "/api/v1/qc/statistics?analyte=glucose&level=normal", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("no data: status = %d, want 422", w.Code)
	}
	if p := decodeProblem(t, w); p.Type != "https://labgraph.dev/problems/insufficient-data" {
		t.Errorf("Type = %q, want insufficient-data", p.Type)
	}

	ingestSeries(t, m, "glucose", "normal", 118, 2.5, 118, 119, 117, 120)
	from := testNow.Add(-24 * time.Hour).Format(time.RFC3339)
	w = serve(h, http.MethodGet, "/api/v1/qc/statistics?analyte=glucose&level=normal&from="+from, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	var s models.ErrorSummary
	if err := json.NewDecoder(w.Body).Decode(&s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.SampleSize != 4 || s.CalculatedMean != 118.5 {
		t.Errorf("summary = n %d mean %v, want n 4 mean 118.5", s.SampleSize, s.CalculatedMean)
	}
}

func TestHandleWestgardAndGroups(t *testing.T) {
	m, _ := newTestModule(t)
	h := newTestMux(m, auth.RoleViewer)
	ingestSeries(t, m, "glucose", "normal", 100, 2, 101, 105, 105, 93)

	w := serve(h, http.MethodGet, "/api/v1/qc/westgard?analyte=glucose&level=normal", nil)
	var hits []models.WestgardHit
	if err := json.NewDecoder(w.Body).Decode(&hits); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(hits) != 3 {
		t.Errorf("hits = %d, want 3", len(hits))
	}

	w = serve(h, http.MethodGet, "/api/v1/qc/groups", nil)
	var groups []models.ControlGroup
	if err := json.NewDecoder(w.Body).Decode(&groups); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(groups) != 1 || groups[0].Count != 4 || groups[0].Violations != 3 {
		t.Errorf("groups = %+v, want one group with 4 records and 3 violations", groups)
	}
}

func TestHandleReferencesAndReports(t *testing.T) {
	m, _ := newTestModule(t)
	h := newTestMux(m, auth.RoleAdmin)

	w := serve(h, http.MethodPut, "/api/v1/qc/references", models.ReferenceRange{Analyte: "glucose", Level: "normal", TargetMean: 100})
	if w.Code != http.StatusBadRequest {
		t.Errorf("zero sd reference: status = %d, want 400", w.Code)
	}
	w = serve(h, http.MethodPut, "/api/v1/qc/references", models.ReferenceRange{Analyte: "glucose", Level: "normal", TargetMean: 100, TargetSD: 2, Unit: "mg/dL"})
	if w.Code != http.StatusOK {
		t.Fatalf("set reference: status = %d; body: %s", w.Code, w.Body.String())
	}

	w = serve(h, http.MethodGet, "/api/v1/qc/references", nil)
	var refs []models.ReferenceRange
	if err := json.NewDecoder(w.Body).Decode(&refs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(refs) != 1 {
		t.Errorf("references = %d, want 1", len(refs))
	}

	// Targets come from the reference just stored.
	w = serve(h, http.MethodPost, "/api/v1/qc/measurements", `[{"analyte":"glucose","level":"normal","value":103}]`)
	if w.Code != http.StatusCreated {
		t.Fatalf("ingest: status = %d", w.Code)
	}

	w = serve(h, http.MethodPost, "/api/v1/qc/reports/run", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("run reports: status = %d; body: %s", w.Code, w.Body.String())
	}
	w = serve(h, http.MethodGet, "/api/v1/qc/reports?analyte=glucose", nil)
	var reports []models.Report
	if err := json.NewDecoder(w.Body).Decode(&reports); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(reports) != 1 || !reports[0].LowConfidence {
		t.Errorf("reports = %+v, want one low-confidence report", reports)
	}
}

func TestHandlers_NoStore(t *testing.T) {
	m := New()
	h := newTestMux(m, auth.RoleAdmin)

	for _, path := range []string{"/api/v1/qc/measurements", "/api/v1/qc/groups", "/api/v1/qc/references", "/api/v1/qc/reports"} {
		w := serve(h, http.MethodGet, path, nil)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("GET %s: status = %d, want 503", path, w.Code)
		}
	}
}
