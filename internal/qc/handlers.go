package qc

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/LabGraphTeam/labgraph/internal/auth"
	"github.com/LabGraphTeam/labgraph/internal/spc"
	"github.com/LabGraphTeam/labgraph/pkg/models"
	"github.com/LabGraphTeam/labgraph/pkg/plugin"
	"go.uber.org/zap"
)

const maxIngestBatch = 5000

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	editor := auth.RequireRole(auth.RoleAdmin, auth.RoleAnalyst)
	return []plugin.Route{
		{Method: "POST", Path: "/measurements", Handler: editor(m.handleIngest)},
		{Method: "GET", Path: "/measurements", Handler: m.handleListMeasurements},
		{Method: "GET", Path: "/measurements/{id}", Handler: m.handleGetMeasurement},
		{Method: "PUT", Path: "/measurements/{id}/reference", Handler: editor(m.handleUpdateReference)},
		{Method: "DELETE", Path: "/measurements/{id}", Handler: editor(m.handleDeleteMeasurement)},
		{Method: "GET", Path: "/groups", Handler: m.handleListGroups},
		{Method: "GET", Path: "/statistics", Handler: m.handleStatistics},
		{Method: "GET", Path: "/westgard", Handler: m.handleWestgard},
		{Method: "GET", Path: "/references", Handler: m.handleListReferences},
		{Method: "PUT", Path: "/references", Handler: editor(m.handleSetReference)},
		{Method: "GET", Path: "/reports", Handler: m.handleListReports},
		{Method: "POST", Path: "/reports/run", Handler: editor(m.handleRunReports)},
	}
}

// UpdateReferenceRequest is the body of PUT /measurements/{id}/reference.
type UpdateReferenceRequest struct {
	TargetMean float64 `json:"target_mean"`
	TargetSD   float64 `json:"target_sd"`
}

// handleIngest classifies and stores a batch of control measurements.
//
//	@Summary		Ingest measurements
//	@Description	Classify and store control measurements. Invalid entries are returned in the rejected list.
//	@Tags			qc
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request body []models.MeasurementInput true "Measurements"
//	@Success		201 {object} models.IngestResult
//	@Failure		400 {object} models.APIProblem
//	@Failure		500 {object} models.APIProblem
//	@Router			/qc/measurements [post]
func (m *Module) handleIngest(w http.ResponseWriter, r *http.Request) {
	var inputs []models.MeasurementInput
	if err := json.NewDecoder(r.Body).Decode(&inputs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: expected an array of measurements")
		return
	}
	if len(inputs) == 0 {
		writeError(w, http.StatusBadRequest, "at least one measurement is required")
		return
	}
	if len(inputs) > maxIngestBatch {
		writeError(w, http.StatusBadRequest, "too many measurements in one request (max "+strconv.Itoa(maxIngestBatch)+")")
		return
	}

	result, err := m.Ingest(r.Context(), inputs)
	if err != nil {
		m.writeServiceError(w, "ingest measurements", err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// handleListMeasurements returns stored measurements, newest first.
//
//	@Summary		List measurements
//	@Description	Returns stored control measurements, newest first.
//	@Tags			qc
//	@Produce		json
//	@Security		BearerAuth
//	@Param			analyte query string false "Analyte name"
//	@Param			level query string false "Control level"
//	@Param			from query string false "RFC 3339 lower bound on measured_at"
//	@Param			to query string false "RFC 3339 upper bound on measured_at"
//	@Param			violations query bool false "Only violating measurements"
//	@Param			limit query int false "Maximum results" default(100)
//	@Param			offset query int false "Results to skip" default(0)
//	@Success		200 {array} models.ControlRecord
//	@Failure		400 {object} models.APIProblem
//	@Failure		500 {object} models.APIProblem
//	@Router			/qc/measurements [get]
func (m *Module) handleListMeasurements(w http.ResponseWriter, r *http.Request) {
	if m.store == nil {
		writeError(w, http.StatusServiceUnavailable, ErrStoreUnavailable.Error())
		return
	}
	q := r.URL.Query()
	from, to, ok := parseWindow(w, r)
	if !ok {
		return
	}
	filter := MeasurementFilter{
		Analyte: q.Get("analyte"),
		Level:   q.Get("level"),
		From:    from,
		To:      to,
		Limit:   parseLimit(r, 100),
		Offset:  parseOffset(r),
	}
	if v := q.Get("violations"); v != "" {
		only, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "violations must be true or false")
			return
		}
		filter.ViolationsOnly = only
	}

	recs, err := m.store.ListMeasurements(r.Context(), filter)
	if err != nil {
		m.writeServiceError(w, "list measurements", err)
		return
	}
	if recs == nil {
		recs = []models.ControlRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// handleGetMeasurement returns one stored measurement.
//
//	@Summary		Get measurement
//	@Tags			qc
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id path string true "Measurement ID"
//	@Success		200 {object} models.ControlRecord
//	@Failure		404 {object} models.APIProblem
//	@Router			/qc/measurements/{id} [get]
func (m *Module) handleGetMeasurement(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	if m.store == nil {
		writeError(w, http.StatusServiceUnavailable, ErrStoreUnavailable.Error())
		return
	}
	rec, err := m.store.GetMeasurement(r.Context(), id)
	if err != nil {
		m.writeServiceError(w, "get measurement", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleUpdateReference replaces the reference values of a measurement and
// reclassifies it.
//
//	@Summary		Update measurement reference
//	@Description	Replace the target mean and SD of a stored measurement; the rule is recomputed.
//	@Tags			qc
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id path string true "Measurement ID"
//	@Param			request body UpdateReferenceRequest true "New reference values"
//	@Success		200 {object} models.ControlRecord
//	@Failure		400 {object} models.APIProblem
//	@Failure		404 {object} models.APIProblem
//	@Router			/qc/measurements/{id}/reference [put]
func (m *Module) handleUpdateReference(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	var req UpdateReferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rec, err := m.UpdateReference(r.Context(), id, req.TargetMean, req.TargetSD)
	if err != nil {
		m.writeServiceError(w, "update reference", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleDeleteMeasurement removes a stored measurement.
//
//	@Summary		Delete measurement
//	@Tags			qc
//	@Security		BearerAuth
//	@Param			id path string true "Measurement ID"
//	@Success		204
//	@Failure		404 {object} models.APIProblem
//	@Router			/qc/measurements/{id} [delete]
func (m *Module) handleDeleteMeasurement(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	if m.store == nil {
		writeError(w, http.StatusServiceUnavailable, ErrStoreUnavailable.Error())
		return
	}
	if err := m.store.DeleteMeasurement(r.Context(), id); err != nil {
		m.writeServiceError(w, "delete measurement", err)
		return
	}
	m.logger.Info("measurement deleted", zap.String("id", id))
	w.WriteHeader(http.StatusNoContent)
}

// handleListGroups returns every analyte/level with stored data.
//
//	@Summary		List control groups
//	@Tags			qc
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200 {array} models.ControlGroup
//	@Router			/qc/groups [get]
func (m *Module) handleListGroups(w http.ResponseWriter, r *http.Request) {
	if m.store == nil {
		writeError(w, http.StatusServiceUnavailable, ErrStoreUnavailable.Error())
		return
	}
	groups, err := m.store.ListGroups(r.Context(), time.Time{})
	if err != nil {
		m.writeServiceError(w, "list groups", err)
		return
	}
	if groups == nil {
		groups = []models.ControlGroup{}
	}
	writeJSON(w, http.StatusOK, groups)
}

// handleStatistics computes error statistics for one analyte and level.
//
//	@Summary		Error statistics
//	@Description	Mean, SD, inaccuracy, systematic, random and total error for one analyte/level window.
//	@Tags			qc
//	@Produce		json
//	@Security		BearerAuth
//	@Param			analyte query string true "Analyte name"
//	@Param			level query string true "Control level"
//	@Param			from query string false "RFC 3339 window start"
//	@Param			to query string false "RFC 3339 window end"
//	@Success		200 {object} models.ErrorSummary
//	@Failure		400 {object} models.APIProblem
//	@Failure		422 {object} models.APIProblem
//	@Router			/qc/statistics [get]
func (m *Module) handleStatistics(w http.ResponseWriter, r *http.Request) {
	analyte, level, ok := requireGroup(w, r)
	if !ok {
		return
	}
	from, to, ok := parseWindow(w, r)
	if !ok {
		return
	}
	summary, err := m.Statistics(r.Context(), analyte, level, from, to)
	if err != nil {
		m.writeServiceError(w, "compute statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleWestgard evaluates Westgard multirules for one analyte and level.
//
//	@Summary		Westgard evaluation
//	@Tags			qc
//	@Produce		json
//	@Security		BearerAuth
//	@Param			analyte query string true "Analyte name"
//	@Param			level query string true "Control level"
//	@Param			from query string false "RFC 3339 window start"
//	@Param			to query string false "RFC 3339 window end"
//	@Success		200 {array} models.WestgardHit
//	@Failure		400 {object} models.APIProblem
//	@Router			/qc/westgard [get]
func (m *Module) handleWestgard(w http.ResponseWriter, r *http.Request) {
	analyte, level, ok := requireGroup(w, r)
	if !ok {
		return
	}
	from, to, ok := parseWindow(w, r)
	if !ok {
		return
	}
	hits, err := m.Westgard(r.Context(), analyte, level, from, to)
	if err != nil {
		m.writeServiceError(w, "evaluate westgard", err)
		return
	}
	writeJSON(w, http.StatusOK, hits)
}

// handleListReferences returns all reference ranges.
//
//	@Summary		List reference ranges
//	@Tags			qc
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200 {array} models.ReferenceRange
//	@Router			/qc/references [get]
func (m *Module) handleListReferences(w http.ResponseWriter, r *http.Request) {
	if m.store == nil {
		writeError(w, http.StatusServiceUnavailable, ErrStoreUnavailable.Error())
		return
	}
	refs, err := m.store.ListReferences(r.Context())
	if err != nil {
		m.writeServiceError(w, "list references", err)
		return
	}
	if refs == nil {
		refs = []models.ReferenceRange{}
	}
	writeJSON(w, http.StatusOK, refs)
}

// handleSetReference creates or replaces a reference range.
//
//	@Summary		Set reference range
//	@Tags			qc
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request body models.ReferenceRange true "Reference range"
//	@Success		200 {object} models.ReferenceRange
//	@Failure		400 {object} models.APIProblem
//	@Router			/qc/references [put]
func (m *Module) handleSetReference(w http.ResponseWriter, r *http.Request) {
	var ref models.ReferenceRange
	if err := json.NewDecoder(r.Body).Decode(&ref); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	saved, err := m.SetReference(r.Context(), ref)
	if err != nil {
		m.writeServiceError(w, "set reference", err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// handleListReports returns stored QC reports, newest first.
//
//	@Summary		List reports
//	@Tags			qc
//	@Produce		json
//	@Security		BearerAuth
//	@Param			analyte query string false "Analyte name"
//	@Param			level query string false "Control level"
//	@Param			limit query int false "Maximum results" default(50)
//	@Success		200 {array} models.Report
//	@Router			/qc/reports [get]
func (m *Module) handleListReports(w http.ResponseWriter, r *http.Request) {
	if m.store == nil {
		writeError(w, http.StatusServiceUnavailable, ErrStoreUnavailable.Error())
		return
	}
	q := r.URL.Query()
	reports, err := m.store.ListReports(r.Context(), q.Get("analyte"), q.Get("level"), parseLimit(r, 50))
	if err != nil {
		m.writeServiceError(w, "list reports", err)
		return
	}
	if reports == nil {
		reports = []models.Report{}
	}
	writeJSON(w, http.StatusOK, reports)
}

// handleRunReports generates reports immediately instead of waiting for the
// schedule.
//
//	@Summary		Run reports
//	@Tags			qc
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200 {object} models.ReportBatch
//	@Failure		500 {object} models.APIProblem
//	@Router			/qc/reports/run [post]
func (m *Module) handleRunReports(w http.ResponseWriter, r *http.Request) {
	batch, err := m.RunReports(r.Context())
	if err != nil {
		m.writeServiceError(w, "run reports", err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

// -- helpers --

// writeServiceError maps module and engine errors onto problem responses.
func (m *Module) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, spc.ErrInsufficientSample):
		writeProblem(w, http.StatusUnprocessableEntity, "insufficient-data", err.Error())
	case errors.Is(err, spc.ErrHeterogeneousGroup),
		errors.Is(err, spc.ErrInvalidMeasurement),
		errors.Is(err, spc.ErrInvalidReferenceRange),
		errors.Is(err, ErrMissingField):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		m.logger.Error("qc request failed", zap.String("op", op), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to "+op)
	}
}

func requireGroup(w http.ResponseWriter, r *http.Request) (analyte, level string, ok bool) {
	q := r.URL.Query()
	analyte, level = strings.TrimSpace(q.Get("analyte")), strings.TrimSpace(q.Get("level"))
	if analyte == "" || level == "" {
		writeError(w, http.StatusBadRequest, "analyte and level query parameters are required")
		return "", "", false
	}
	return analyte, level, true
}

func parseWindow(w http.ResponseWriter, r *http.Request) (from, to time.Time, ok bool) {
	q := r.URL.Query()
	var err error
	if s := q.Get("from"); s != "" {
		if from, err = time.Parse(time.RFC3339, s); err != nil {
			writeError(w, http.StatusBadRequest, "from must be an RFC 3339 timestamp")
			return time.Time{}, time.Time{}, false
		}
	}
	if s := q.Get("to"); s != "" {
		if to, err = time.Parse(time.RFC3339, s); err != nil {
			writeError(w, http.StatusBadRequest, "to must be an RFC 3339 timestamp")
			return time.Time{}, time.Time{}, false
		}
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		writeError(w, http.StatusBadRequest, "to must not be before from")
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeProblem(w, status, strings.ReplaceAll(strings.ToLower(http.StatusText(status)), " ", "-"), detail)
}

func writeProblem(w http.ResponseWriter, status int, slug, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(models.APIProblem{
		Type:   "https://labgraph.dev/problems/" + slug,
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	})
}

func parseLimit(r *http.Request, defaultLimit int) int {
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 1000 {
			return n
		}
	}
	return defaultLimit
}

func parseOffset(r *http.Request) int {
	if s := r.URL.Query().Get("offset"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			return n
		}
	}
	return 0
}
