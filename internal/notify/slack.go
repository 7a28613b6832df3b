package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/LabGraphTeam/labgraph/pkg/models"
	"github.com/slack-go/slack"
)

// maxSlackLines caps the records listed in one message.
const maxSlackLines = 30

type slackChannel struct {
	api       *slack.Client
	channelID string
}

func (c *slackChannel) name() string { return "slack" }

func (c *slackChannel) sendViolations(ctx context.Context, recs []models.ControlRecord, _ time.Time) error {
	return c.post(ctx, formatViolations(recs))
}

func (c *slackChannel) sendReports(ctx context.Context, batch models.ReportBatch) error {
	return c.post(ctx, formatReports(batch))
}

func (c *slackChannel) post(ctx context.Context, text string) error {
	_, _, err := c.api.PostMessageContext(ctx, c.channelID, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("slack chat.postMessage: %w", err)
	}
	return nil
}

func formatViolations(recs []models.ControlRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, ":warning: *QC violations* (%d)\n", len(recs))
	for i, r := range recs {
		if i == maxSlackLines {
			fmt.Fprintf(&b, "... and %d more\n", len(recs)-maxSlackLines)
			break
		}
		fmt.Fprintf(&b, "• %s / %s: %s", r.Analyte, r.Level, formatValue(r.Value, r.Unit))
		fmt.Fprintf(&b, " rule %s (%s)\n", r.RuleCode, r.RuleDescription)
	}
	return b.String()
}

func formatReports(batch models.ReportBatch) string {
	var b strings.Builder
	fmt.Fprintf(&b, ":bar_chart: *QC report* %s: %d groups", batch.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"), len(batch.Reports))
	if batch.Skipped > 0 {
		fmt.Fprintf(&b, ", %d skipped", batch.Skipped)
	}
	b.WriteString("\n")
	for i, r := range batch.Reports {
		if i == maxSlackLines {
			fmt.Fprintf(&b, "... and %d more\n", len(batch.Reports)-maxSlackLines)
			break
		}
		fmt.Fprintf(&b, "• %s / %s: total error %s%%, n=%d", r.Analyte, r.Level,
			strconv.FormatFloat(r.TotalErrorPct, 'f', -1, 64), r.SampleSize)
		if len(r.WestgardHits) > 0 {
			fmt.Fprintf(&b, ", %d Westgard hits", len(r.WestgardHits))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatValue(v float64, unit string) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if unit != "" {
		s += " " + unit
	}
	return s
}
