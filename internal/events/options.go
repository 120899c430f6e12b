package events

import "time"

type Option func(ep *EventProducer)

// WithTopic sets the topic every generation event is published to.
func WithTopic(topic string) Option {
	return func(ep *EventProducer) {
		if topic != "" {
			ep.topic = topic
		}
	}
}

// WithSource overrides the cloudevents source attribute.
func WithSource(source string) Option {
	return func(ep *EventProducer) {
		ep.source = source
	}
}

// WithWriteTimeout bounds each call to the writer.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(ep *EventProducer) {
		ep.writeTimeout = timeout
	}
}
