package ws

import (
	"time"

	"github.com/LabGraphTeam/labgraph/pkg/models"
)

// MessageType discriminates WebSocket messages.
type MessageType string

const (
	MessageMeasurementClassified MessageType = "measurement.classified"
	MessageViolationsDetected    MessageType = "violations.detected"
	MessageReportGenerated       MessageType = "report.generated"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data"`

	// analytes lists the analytes the message concerns; clients with an
	// analyte filter only receive matching messages. Empty matches everyone.
	analytes []string

	// narrow, when set, rebuilds Data for a client filtered to one analyte
	// so a mixed payload never leaks the other analytes.
	narrow func(analyte string) any
}

// ViolationsData is the payload for violations.detected messages.
type ViolationsData struct {
	Count   int                    `json:"count"`
	Records []models.ControlRecord `json:"records"`
}

// violationsFor restricts records to one analyte.
func violationsFor(records []models.ControlRecord, analyte string) ViolationsData {
	out := make([]models.ControlRecord, 0, len(records))
	for _, r := range records {
		if r.Analyte == analyte {
			out = append(out, r)
		}
	}
	return ViolationsData{Count: len(out), Records: out}
}

// ReportsData is the payload for report.generated messages.
type ReportsData struct {
	Reports []ReportSummary `json:"reports"`
	Skipped int             `json:"skipped"`
}

// ReportSummary is the part of a stored report pushed to live clients.
type ReportSummary struct {
	ID            string  `json:"id"`
	Analyte       string  `json:"analyte"`
	Level         string  `json:"level"`
	TotalErrorPct float64 `json:"total_error_pct"`
	SampleSize    int     `json:"sample_size"`
	WestgardHits  int     `json:"westgard_hits"`
}
