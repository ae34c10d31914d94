// Package notify publishes terminal task records to NATS so other services
// can react to completed and failed circuits without polling.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/seantiz/qcflow/internal/model"
)

// StatusEvent is the JSON body published for each terminal task.
type StatusEvent struct {
	TaskID     string         `json:"task_id"`
	Status     string         `json:"status"`
	Result     map[string]int `json:"result,omitempty"`
	Message    string         `json:"message,omitempty"`
	Backend    string         `json:"backend,omitempty"`
	Shots      int            `json:"shots"`
	DurationMS int64          `json:"duration_ms"`
}

// Publisher sends status events on a subject.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher creates a publisher for subject.
func NewPublisher(nc *nats.Conn, subject string) *Publisher {
	return &Publisher{nc: nc, subject: subject}
}

// Notify publishes t. Publishing is fire-and-forget; ctx is checked only
// before sending.
func (p *Publisher) Notify(ctx context.Context, t *model.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ev := StatusEvent{
		TaskID:  t.ID,
		Status:  t.Status,
		Result:  t.Result,
		Message: t.Message,
		Backend: t.Backend,
		Shots:   t.Shots,
	}
	if t.FinalizedAt != nil {
		ev.DurationMS = t.FinalizedAt.Sub(t.CreatedAt).Milliseconds()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal status event: %w", err)
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish %q: %w", p.subject, err)
	}
	return nil
}
