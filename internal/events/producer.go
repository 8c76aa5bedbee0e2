package events

import (
	"context"
	"io"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tabval/validation-service/pkg/metrics"
)

const (
	ProgressMessageKind MessageKind = "tabval.validation.events.progress"
	AuditMessageKind    MessageKind = "tabval.validation.events.audit"
	JobMessageKind      MessageKind = "tabval.validation.events.job"

	defaultTopic         = "tabval.validation.events"
	defaultQueueCapacity = 1024
	drainTimeout         = 5 * time.Second
	eventSource          = "tabval.validation.service"
)

// Writer is the interface to be implemented by the underlying transport.
type Writer interface {
	Write(ctx context.Context, topic string, e cloudevents.Event) error
	Close(ctx context.Context) error
}

// EventProducer decouples the pipeline from the transport through a bounded
// queue, so a slow or failing writer never blocks validation. A single
// consumer goroutine wraps each message in a cloudevents envelope and hands
// it to the writer in enqueue order.
type EventProducer struct {
	queue    *eventQueue
	writer   Writer
	topic    string
	capacity int
	done     chan struct{}
}

func NewEventProducer(w Writer, opts ...ProducerOptions) *EventProducer {
	ep := &EventProducer{
		writer:   w,
		topic:    defaultTopic,
		capacity: defaultQueueCapacity,
	}

	for _, o := range opts {
		o(ep)
	}

	ep.queue = newEventQueue(ep.capacity)
	ep.done = make(chan struct{})

	go ep.run()
	return ep
}

func (ep *EventProducer) Write(ctx context.Context, kind MessageKind, body io.Reader) error {
	d, err := io.ReadAll(body)
	if err != nil {
		return err
	}

	ep.queue.Enqueue(kind, d)
	return nil
}

// Close drains queued messages within the drain timeout and then closes the
// underlying writer.
func (ep *EventProducer) Close() error {
	ep.queue.Close()

	select {
	case <-ep.done:
	case <-time.After(drainTimeout):
		zap.S().Named("event_producer").Warn("closing with undelivered messages")
	}

	if dropped := ep.queue.Dropped(); dropped > 0 {
		zap.S().Named("event_producer").Warnw("messages dropped by the bounded queue", "count", dropped)
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	return ep.writer.Close(closeCtx)
}

func (ep *EventProducer) run() {
	defer close(ep.done)

	for {
		msg, ok := ep.queue.Dequeue()
		if !ok {
			return
		}

		e := cloudevents.NewEvent()
		e.SetID(uuid.NewString())
		e.SetSource(eventSource)
		e.SetType(string(msg.kind))
		_ = e.SetData(*cloudevents.StringOfApplicationJSON(), msg.data)

		if err := ep.writer.Write(context.TODO(), ep.topic, e); err != nil {
			metrics.IncreaseEventPublishErrorsMetric()
			zap.S().Named("event_producer").Errorw("failed to send message", "error", err, "event", e)
		}
	}
}
