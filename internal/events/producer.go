package events

import (
	"context"
	"io"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	GenerationFinishedKind string = "data_broker.events.generation.finished"
	GenerationFailedKind   string = "data_broker.events.generation.failed"
	defaultTopic           string = "data_broker.events"
	eventSource            string = "data_broker.generation"
	closeTimeout                  = 5 * time.Second
	defaultWriteTimeout           = 30 * time.Second
)

// Writer is the interface to be implemented by the underlying writer.
type Writer interface {
	Write(ctx context.Context, topic string, e cloudevents.Event) error
	Close(ctx context.Context) error
}

// EventProducer buffers events and hands them to a Writer from its own goroutine,
// so callers never wait on the writer.
type EventProducer struct {
	buffer  *buffer
	wakeCh  chan struct{}
	doneCh  chan struct{}
	stopped chan struct{}
	writer       Writer
	topic        string
	source       string
	writeTimeout time.Duration
	log          *zap.SugaredLogger
}

func NewEventProducer(w Writer, opts ...Option) *EventProducer {
	ep := &EventProducer{
		buffer:       newBuffer(),
		wakeCh:       make(chan struct{}, 1),
		doneCh:       make(chan struct{}),
		stopped:      make(chan struct{}),
		writer:       w,
		topic:        defaultTopic,
		source:       eventSource,
		writeTimeout: defaultWriteTimeout,
		log:          zap.S().Named("event_producer"),
	}

	for _, o := range opts {
		o(ep)
	}

	go ep.run()
	return ep
}

func (ep *EventProducer) Write(ctx context.Context, kind string, body io.Reader) error {
	d, err := io.ReadAll(body)
	if err != nil {
		return err
	}

	ep.buffer.PushBack(&message{Kind: kind, Data: d})

	select {
	case ep.wakeCh <- struct{}{}:
	default:
	}
	return nil
}

// Close sends the pending events and closes the writer.
func (ep *EventProducer) Close() error {
	closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	g, ctx := errgroup.WithContext(closeCtx)
	g.Go(func() error {
		close(ep.doneCh)
		select {
		case <-ep.stopped:
		case <-ctx.Done():
			return ctx.Err()
		}
		return ep.writer.Close(ctx)
	})
	if err := g.Wait(); err != nil {
		ep.log.Errorf("event producer closed with error: %s", err)
		return err
	}

	ep.log.Info("event producer closed")
	return nil
}

func (ep *EventProducer) run() {
	defer close(ep.stopped)

	for {
		msg := ep.buffer.Pop()
		if msg == nil {
			select {
			case <-ep.wakeCh:
				continue
			case <-ep.doneCh:
				// drain what was written before Close
				if ep.buffer.Size() > 0 {
					continue
				}
				return
			}
		}

		e := cloudevents.NewEvent()
		e.SetID(uuid.NewString())
		e.SetSource(ep.source)
		e.SetType(msg.Kind)
		e.SetTime(time.Now())
		_ = e.SetData(*cloudevents.StringOfApplicationJSON(), msg.Data)

		ctx, cancel := context.WithTimeout(context.Background(), ep.writeTimeout)
		if err := ep.writer.Write(ctx, ep.topic, e); err != nil {
			ep.log.Errorw("failed to send event", "error", err, "type", msg.Kind)
		}
		cancel()
	}
}
