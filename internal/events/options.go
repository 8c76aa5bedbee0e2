package events

type ProducerOptions func(e *EventProducer)

func WithOutputTopic(topic string) ProducerOptions {
	return func(e *EventProducer) {
		e.topic = topic
	}
}

// WithQueueCapacity bounds the number of messages held for the transport
// writer before the oldest are dropped.
func WithQueueCapacity(capacity int) ProducerOptions {
	return func(e *EventProducer) {
		if capacity > 0 {
			e.capacity = capacity
		}
	}
}
