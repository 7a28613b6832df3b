// Package ws streams QC events to browser clients over WebSocket.
package ws

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/LabGraphTeam/labgraph/internal/auth"
	"github.com/LabGraphTeam/labgraph/internal/qc"
	"github.com/LabGraphTeam/labgraph/pkg/models"
	"github.com/LabGraphTeam/labgraph/pkg/plugin"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// Handler provides the QC live feed endpoint.
type Handler struct {
	hub         *Hub
	tokens      *auth.TokenService
	logger      *zap.Logger
	unsubscribe []func()
}

// Compile-time check that Handler implements the server interface.
var _ interface {
	RegisterRoutes(mux *http.ServeMux)
} = (*Handler)(nil)

// NewHandler creates a WebSocket handler and subscribes to QC events.
func NewHandler(tokens *auth.TokenService, bus plugin.Subscriber, logger *zap.Logger) *Handler {
	h := &Handler{
		hub:    NewHub(logger),
		tokens: tokens,
		logger: logger,
	}
	h.subscribeToEvents(bus)
	return h
}

// RegisterRoutes registers WebSocket routes on the server mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/ws/qc", h.handleQCStream)
}

// Close detaches the handler from the event bus.
func (h *Handler) Close() {
	for _, unsub := range h.unsubscribe {
		unsub()
	}
	h.unsubscribe = nil
}

// handleQCStream upgrades the connection and streams QC events. An optional
// ?analyte= parameter restricts the feed to one analyte.
func (h *Handler) handleQCStream(w http.ResponseWriter, r *http.Request) {
	// Browsers cannot set headers on the WebSocket handshake.
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token parameter", http.StatusUnauthorized)
		return
	}
	claims, err := h.tokens.ValidateAccessToken(token)
	if err != nil {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Origin is not checked; the token authenticates the client.
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("websocket accept failed", zap.Error(err))
		return
	}

	client := &Client{
		conn:    conn,
		userID:  claims.UserID,
		analyte: strings.TrimSpace(r.URL.Query().Get("analyte")),
		send:    make(chan Message, sendBuffer),
		logger:  h.logger,
	}
	h.hub.Register(client)

	ctx := r.Context()
	done := make(chan struct{})
	go func() {
		client.writePump(ctx)
		close(done)
	}()

	client.readPump(ctx)

	h.hub.Unregister(client)
	conn.Close(websocket.StatusNormalClosure, "")
	<-done
}

// subscribeToEvents forwards QC bus events to connected clients.
func (h *Handler) subscribeToEvents(bus plugin.Subscriber) {
	if bus == nil {
		return
	}

	h.unsubscribe = append(h.unsubscribe,
		bus.Subscribe(qc.TopicMeasurementClassified, func(_ context.Context, event plugin.Event) {
			rec, ok := event.Payload.(models.ControlRecord)
			if !ok {
				return
			}
			h.hub.Broadcast(Message{
				Type:      MessageMeasurementClassified,
				Timestamp: event.Timestamp,
				Data:      rec,
				analytes:  []string{rec.Analyte},
			})
		}),

		bus.Subscribe(qc.TopicViolationsDetected, func(_ context.Context, event plugin.Event) {
			batch, ok := event.Payload.(models.ViolationBatch)
			if !ok {
				return
			}
			analytes := make([]string, 0, len(batch.Records))
			for _, r := range batch.Records {
				if !slices.Contains(analytes, r.Analyte) {
					analytes = append(analytes, r.Analyte)
				}
			}
			h.hub.Broadcast(Message{
				Type:      MessageViolationsDetected,
				Timestamp: event.Timestamp,
				Data:      ViolationsData{Count: len(batch.Records), Records: batch.Records},
				analytes:  analytes,
				narrow: func(analyte string) any {
					return violationsFor(batch.Records, analyte)
				},
			})
		}),

		bus.Subscribe(qc.TopicReportGenerated, func(_ context.Context, event plugin.Event) {
			batch, ok := event.Payload.(models.ReportBatch)
			if !ok {
				return
			}
			data := ReportsData{Reports: make([]ReportSummary, 0, len(batch.Reports)), Skipped: batch.Skipped}
			for _, r := range batch.Reports {
				data.Reports = append(data.Reports, ReportSummary{
					ID:            r.ID,
					Analyte:       r.Analyte,
					Level:         r.Level,
					TotalErrorPct: r.TotalErrorPct,
					SampleSize:    r.SampleSize,
					WestgardHits:  len(r.WestgardHits),
				})
			}
			h.hub.Broadcast(Message{
				Type:      MessageReportGenerated,
				Timestamp: event.Timestamp,
				Data:      data,
			})
		}),
	)

	h.logger.Info("subscribed to qc events for websocket broadcasting")
}
