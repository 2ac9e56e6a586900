package iomessaging

import (
	"context"
	"log/slog"

	"github.com/openepi/sentinel/pkg/links"
	"github.com/openepi/sentinel/pkg/pipeline"
	"github.com/openepi/sentinel/pkg/schema"
)

// Stage delivers the chunk's alerts after persistence committed them.
// It notifies both the aggregate alerts the detector raised and the
// individual alerts the coder marked inline.
type Stage struct {
	client *Client
	idLen  int
}

// NewStage wires the delivery stage. idLen is the configured alert-id
// suffix length, used when an individual alert carries no explicit id.
func NewStage(client *Client, idLen int) *Stage {
	return &Stage{client: client, idLen: idLen}
}

// Name implements pipeline.Stage.
func (s *Stage) Name() string { return "alert_messaging" }

// Run sends every notification of the chunk. Failures warn and the
// chunk still succeeds; the facade is not part of the commit.
func (s *Stage) Run(
	ctx context.Context,
	chunk *pipeline.Chunk,
	items []pipeline.Item,
) ([]pipeline.Item, error) {
	if !s.client.Enabled() {
		return items, nil
	}

	for _, a := range chunk.Alerts() {
		s.send(ctx, a)
	}
	for _, r := range chunk.Coded() {
		if a := s.individual(r); a != nil {
			s.send(ctx, a)
		}
	}
	return items, nil
}

// individual lifts an inline individual-alert marker into an alert
// notification. Aggregate representatives are skipped: their alert rows
// already went out above.
func (s *Stage) individual(r *schema.Data) *schema.Alert {
	typ, _ := r.Variables["alert_type"].(string)
	if typ != "individual" {
		return nil
	}
	id, _ := r.Variables["alert_id"].(string)
	if id == "" {
		id = links.Suffix(r.UUID, s.idLen)
	}
	reason, _ := r.Variables["alert_reason"].(string)
	return &schema.Alert{
		AlertID:  id,
		UUID:     r.UUID,
		Reason:   reason,
		Type:     "individual",
		Date:     r.Date,
		Clinic:   r.Clinic,
		Duration: 1,
	}
}

func (s *Stage) send(ctx context.Context, a *schema.Alert) {
	if err := s.client.SendAlert(ctx, a); err != nil {
		slog.Warn("Alert notification failed",
			"alert", a.AlertID, "reason", a.Reason, "error", err)
	}
}
