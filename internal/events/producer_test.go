package events

import (
	"bytes"
	"context"
	"sync"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("producer", func() {
	It("hands every event to the writer", func() {
		w := newTestWriter()
		ep := NewEventProducer(w, WithTopic("broker"))

		Expect(ep.Write(context.TODO(), GenerationFinishedKind, bytes.NewReader([]byte(`{"job_id":1}`)))).To(BeNil())
		Expect(ep.Write(context.TODO(), GenerationFailedKind, bytes.NewReader([]byte(`{"job_id":2}`)))).To(BeNil())

		Eventually(w.count).Should(Equal(2))
		events := w.events()
		Expect(events[0].Type()).To(Equal(GenerationFinishedKind))
		Expect(events[0].Source()).To(Equal(eventSource))
		Expect(string(events[0].Data())).To(Equal(`{"job_id":1}`))
		Expect(events[1].Type()).To(Equal(GenerationFailedKind))
		Expect(w.topics()).To(ConsistOf("broker", "broker"))

		Expect(ep.Close()).To(BeNil())
		Expect(w.closed).To(BeTrue())
	})

	It("stamps the configured source", func() {
		w := newTestWriter()
		ep := NewEventProducer(w, WithSource("data_broker.test"), WithTopic(""))

		Expect(ep.Write(context.TODO(), GenerationFinishedKind, bytes.NewReader([]byte("{}")))).To(BeNil())
		Eventually(w.count).Should(Equal(1))
		Expect(w.events()[0].Source()).To(Equal("data_broker.test"))
		Expect(w.topics()).To(ConsistOf(defaultTopic))
		Expect(ep.Close()).To(BeNil())
	})

	It("flushes pending events on close", func() {
		w := newTestWriter()
		ep := NewEventProducer(w)
		for i := 0; i < 50; i++ {
			Expect(ep.Write(context.TODO(), GenerationFinishedKind, bytes.NewReader([]byte("{}")))).To(BeNil())
		}

		Expect(ep.Close()).To(BeNil())
		Expect(w.count()).To(Equal(50))
	})
})

type testwriter struct {
	mu       sync.Mutex
	messages []cloudevents.Event
	topicsOf []string
	closed   bool
}

func newTestWriter() *testwriter {
	return &testwriter{}
}

func (t *testwriter) Write(ctx context.Context, topic string, e cloudevents.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, e)
	t.topicsOf = append(t.topicsOf, topic)
	return nil
}

func (t *testwriter) Close(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *testwriter) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

func (t *testwriter) events() []cloudevents.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]cloudevents.Event(nil), t.messages...)
}

func (t *testwriter) topics() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.topicsOf...)
}
