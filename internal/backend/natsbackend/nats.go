// Package natsbackend implements backend.Backend over NATS request-reply.
// Requests carry a JSON backend.CircuitSpec; engines reply with a
// backend.Response. Serve attaches any backend.Backend to a subject.
package natsbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/seantiz/qcflow/internal/backend"
)

// Name is the registry name of the NATS engine adapter.
const Name = "nats"

// QueueGroup load-balances requests across engines serving one subject.
const QueueGroup = "qcflow-engines"

const transport = "nats"

// Backend sends circuits to engines subscribed on a NATS subject.
type Backend struct {
	nc      *nats.Conn
	subject string
}

var _ backend.Backend = (*Backend)(nil)

// New creates an adapter publishing requests on subject.
func New(nc *nats.Conn, subject string) *Backend {
	return &Backend{nc: nc, subject: subject}
}

// Run sends the circuit and waits for a reply until ctx is done.
func (b *Backend) Run(ctx context.Context, spec backend.CircuitSpec) (res backend.Result, err error) {
	start := time.Now()
	defer func() { backend.ObserveRun(transport, start, err) }()

	data, err := json.Marshal(spec)
	if err != nil {
		return backend.Result{}, fmt.Errorf("marshal request: %w", err)
	}

	msg, err := b.nc.RequestWithContext(ctx, b.subject, data)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return backend.Result{}, fmt.Errorf("no engine subscribed to %q: %w", b.subject, err)
		}
		return backend.Result{}, fmt.Errorf("request %q: %w", b.subject, err)
	}

	var out backend.Response
	if err := json.Unmarshal(msg.Data, &out); err != nil {
		return backend.Result{}, fmt.Errorf("decode engine response: %w", err)
	}
	if out.Error != "" {
		return backend.Result{}, fmt.Errorf("engine error: %s", out.Error)
	}
	if out.Counts == nil {
		return backend.Result{}, errors.New("engine response has no counts")
	}

	return backend.Result{Counts: out.Counts, DurationMS: out.DurationMS}, nil
}

// Capabilities reports the adapter.
func (b *Backend) Capabilities() backend.Capabilities {
	return backend.Capabilities{
		Name:      Name,
		Transport: transport,
		Dialect:   "2.0",
	}
}

// Serve answers requests on subject with b. Each request runs with the
// given timeout. The caller unsubscribes to stop serving.
func Serve(nc *nats.Conn, subject string, b backend.Backend, timeout time.Duration, logger *slog.Logger) (*nats.Subscription, error) {
	return nc.QueueSubscribe(subject, QueueGroup, func(msg *nats.Msg) {
		var spec backend.CircuitSpec
		if err := json.Unmarshal(msg.Data, &spec); err != nil {
			logger.Warn("engine: invalid request", "subject", subject, "error", err)
			respond(msg, backend.Response{Error: "invalid JSON request"}, logger)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		res, err := b.Run(ctx, spec)
		if err != nil {
			respond(msg, backend.Response{Error: err.Error()}, logger)
			return
		}
		respond(msg, backend.Response{Counts: res.Counts, DurationMS: res.DurationMS}, logger)
	})
}

func respond(msg *nats.Msg, resp backend.Response, logger *slog.Logger) {
	data, err := json.Marshal(resp)
	if err != nil {
		logger.Error("engine: marshal reply", "error", err)
		return
	}
	if err := msg.Respond(data); err != nil {
		logger.Warn("engine: reply failed", "error", err)
	}
}
