package events

import (
	"bytes"
	"context"
	"encoding/json"

	api "github.com/tabval/validation-service/api/v1alpha1"
)

// ProgressPublisher adapts the event producer to the pipeline's progress
// sink boundary.
type ProgressPublisher struct {
	producer *EventProducer
}

func NewProgressPublisher(producer *EventProducer) *ProgressPublisher {
	return &ProgressPublisher{producer: producer}
}

func (p *ProgressPublisher) Publish(ctx context.Context, snapshot api.ProgressEvent) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return p.producer.Write(ctx, ProgressMessageKind, bytes.NewReader(data))
}

// AuditPublisher adapts the event producer to the pipeline's audit sink
// boundary, emitting one event per entry in sequence order.
type AuditPublisher struct {
	producer *EventProducer
}

func NewAuditPublisher(producer *EventProducer) *AuditPublisher {
	return &AuditPublisher{producer: producer}
}

func (p *AuditPublisher) Append(ctx context.Context, entries []api.AuditEvent) error {
	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		if err := p.producer.Write(ctx, AuditMessageKind, bytes.NewReader(data)); err != nil {
			return err
		}
	}
	return nil
}

// PublishJobEvent emits the terminal job notification.
func PublishJobEvent(ctx context.Context, producer *EventProducer, event api.JobEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return producer.Write(ctx, JobMessageKind, bytes.NewReader(data))
}
