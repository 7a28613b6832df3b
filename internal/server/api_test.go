package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/LabGraphTeam/labgraph/internal/auth"
	"github.com/LabGraphTeam/labgraph/internal/event"
	"github.com/LabGraphTeam/labgraph/internal/qc"
	"github.com/LabGraphTeam/labgraph/internal/registry"
	"github.com/LabGraphTeam/labgraph/internal/server"
	"github.com/LabGraphTeam/labgraph/internal/testutil"
	"github.com/LabGraphTeam/labgraph/pkg/models"
	"github.com/LabGraphTeam/labgraph/pkg/plugin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const adminPassword = "levey1jennings"

type stack struct {
	handler http.Handler
	svc     *auth.Service
	logs    *observer.ObservedLogs
}

// newStack wires the real auth, registry and qc module behind the server
// middleware chain, logging into an observer.
func newStack(t *testing.T, cfg server.Config) *stack {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	ctx := context.Background()

	db := testutil.NewStore(t)
	bus := event.NewBus(logger)
	reg := registry.New(logger)
	if err := reg.Register(qc.New()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := reg.InitAll(ctx, func(string) plugin.Dependencies {
		return plugin.Dependencies{Logger: logger, Store: db, Bus: bus}
	}); err != nil {
		t.Fatalf("InitAll: %v", err)
	}

	users, err := auth.NewUserStore(ctx, db)
	if err != nil {
		t.Fatalf("NewUserStore: %v", err)
	}
	tokens := auth.NewTokenService([]byte("test-secret-0123456789abcdef"), 15*time.Minute, time.Hour)
	svc := auth.NewService(users, tokens, logger)

	cfg.Host = "127.0.0.1"
	srv := server.New(cfg, reg, logger, nil, auth.NewHandler(svc, logger))
	return &stack{handler: srv.Handler(), svc: svc, logs: logs}
}

func (s *stack) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func (s *stack) login(t *testing.T, username, password string) string {
	t.Helper()
	w := s.do(t, "POST", "/api/v1/auth/login", "", auth.LoginRequest{Username: username, Password: password})
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", username, w.Code, w.Body.String())
	}
	var pair auth.TokenPair
	if err := json.NewDecoder(w.Body).Decode(&pair); err != nil {
		t.Fatalf("decode tokens: %v", err)
	}
	return pair.AccessToken
}

func setupAdmin(t *testing.T, s *stack) string {
	t.Helper()
	w := s.do(t, "POST", "/api/v1/auth/setup", "", auth.SetupRequest{
		Username: "admin", Email: "admin@lab.example", Password: adminPassword,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("setup: status %d body %s", w.Code, w.Body.String())
	}
	return s.login(t, "admin", adminPassword)
}

func glucose(value float64) models.MeasurementInput {
	mean, sd := 100.0, 2.0
	return models.MeasurementInput{Analyte: "glucose", Level: "normal", Value: value, TargetMean: &mean, TargetSD: &sd, Unit: "mg/dL"}
}

func TestAPI_RequiresAuthentication(t *testing.T) {
	s := newStack(t, server.Config{})

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{"GET", "/api/v1/qc/measurements", http.StatusUnauthorized},
		{"POST", "/api/v1/qc/measurements", http.StatusUnauthorized},
		{"GET", "/api/v1/plugins", http.StatusUnauthorized},
		{"GET", "/api/v1/health", http.StatusOK},
		{"GET", "/api/v1/auth/setup/status", http.StatusOK},
		{"GET", "/healthz", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			if w := s.do(t, tt.method, tt.path, "", nil); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestAPI_IngestAndQuery(t *testing.T) {
	s := newStack(t, server.Config{})
	token := setupAdmin(t, s)

	w := s.do(t, "POST", "/api/v1/qc/measurements", token, []models.MeasurementInput{glucose(101), glucose(105), glucose(93)})
	if w.Code != http.StatusCreated {
		t.Fatalf("ingest status = %d body %s", w.Code, w.Body.String())
	}
	var res models.IngestResult
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Accepted) != 3 {
		t.Fatalf("accepted = %d, want 3", len(res.Accepted))
	}
	if res.Accepted[2].RuleCode != "-3s" || !res.Accepted[2].Violation {
		t.Errorf("third = %s violation %v, want -3s violation", res.Accepted[2].RuleCode, res.Accepted[2].Violation)
	}

	w = s.do(t, "GET", "/api/v1/qc/measurements?violations=true", token, nil)
	var violations []models.ControlRecord
	_ = json.NewDecoder(w.Body).Decode(&violations)
	if w.Code != http.StatusOK || len(violations) != 2 {
		t.Errorf("violations = %d (status %d), want 2", len(violations), w.Code)
	}

	w = s.do(t, "GET", "/api/v1/qc/statistics?analyte=glucose&level=normal", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("statistics status = %d body %s", w.Code, w.Body.String())
	}
	var sum models.ErrorSummary
	_ = json.NewDecoder(w.Body).Decode(&sum)
	if sum.SampleSize != 3 || sum.TargetMean != 100 {
		t.Errorf("summary = %+v, want n 3 target 100", sum)
	}
}

func TestAPI_ViewerCannotWrite(t *testing.T) {
	s := newStack(t, server.Config{})
	setupAdmin(t, s)
	if _, err := s.svc.CreateUser(context.Background(), "viewer", "viewer@lab.example", "display1wall", auth.RoleViewer); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	token := s.login(t, "viewer", "display1wall")

	if w := s.do(t, "POST", "/api/v1/qc/measurements", token, []models.MeasurementInput{glucose(101)}); w.Code != http.StatusForbidden {
		t.Errorf("viewer ingest status = %d, want 403", w.Code)
	}
	if w := s.do(t, "GET", "/api/v1/qc/measurements", token, nil); w.Code != http.StatusOK {
		t.Errorf("viewer list status = %d, want 200", w.Code)
	}
}

func TestAPI_MalformedInput(t *testing.T) {
	s := newStack(t, server.Config{})
	token := setupAdmin(t, s)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"truncated json", "/api/v1/qc/measurements", `[{"analyte":`, http.StatusBadRequest},
		{"object instead of array", "/api/v1/qc/measurements", `{"analyte":"glucose"}`, http.StatusBadRequest},
		{"empty batch", "/api/v1/qc/measurements", `[]`, http.StatusBadRequest},
		{"reference missing level", "/api/v1/qc/references", `{"analyte":"glucose","target_mean":1,"target_sd":1}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := "POST"
			if strings.HasSuffix(tt.path, "references") {
				method = "PUT"
			}
			req := httptest.NewRequest(method, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()
			s.handler.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
				t.Errorf("Content-Type = %q, want application/problem+json", ct)
			}
		})
	}
}

func TestAPI_SecretsNeverLogged(t *testing.T) {
	s := newStack(t, server.Config{})
	token := setupAdmin(t, s)
	// A failed login is logged; the attempted password must not be.
	s.do(t, "POST", "/api/v1/auth/login", "", auth.LoginRequest{Username: "admin", Password: "wrong1password"})
	s.do(t, "GET", "/api/v1/qc/groups", token, nil)

	for _, entry := range s.logs.All() {
		line := entry.Message
		for k, v := range entry.ContextMap() {
			line += " " + k + "=" + toString(v)
		}
		for _, secret := range []string{adminPassword, "wrong1password", token} {
			if strings.Contains(line, secret) {
				t.Errorf("log entry leaks a secret: %q", line)
			}
		}
	}
	if s.logs.Len() == 0 {
		t.Error("expected request logs to be captured")
	}
}

func TestAPI_ReadOnlyMode(t *testing.T) {
	s := newStack(t, server.Config{ReadOnly: true})
	// Setup is a write, so create the admin through the service.
	if _, err := s.svc.Setup(context.Background(), "admin", "admin@lab.example", adminPassword); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	token := s.login(t, "admin", adminPassword)

	if w := s.do(t, "POST", "/api/v1/qc/measurements", token, []models.MeasurementInput{glucose(101)}); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("ingest in read-only mode status = %d, want 405", w.Code)
	}
	if w := s.do(t, "GET", "/api/v1/qc/groups", token, nil); w.Code != http.StatusOK {
		t.Errorf("groups in read-only mode status = %d, want 200", w.Code)
	}
}

func toString(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}
