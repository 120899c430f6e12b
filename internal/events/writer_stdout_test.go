package events

import (
	"context"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var _ = Describe("stdout writer", func() {
	var (
		logs *observer.ObservedLogs
		undo func()
	)

	BeforeEach(func() {
		core, observed := observer.New(zap.InfoLevel)
		logs = observed
		undo = zap.ReplaceGlobals(zap.New(core))
	})

	AfterEach(func() {
		undo()
	})

	event := func(data string) cloudevents.Event {
		e := cloudevents.NewEvent()
		e.SetID("1")
		e.SetSource(eventSource)
		e.SetType(GenerationFinishedKind)
		Expect(e.SetData(*cloudevents.StringOfApplicationJSON(), []byte(data))).To(Succeed())
		return e
	}

	It("logs the job of a generation event", func() {
		w := NewStdoutWriter()
		Expect(w.Write(context.TODO(), defaultTopic, event(`{"job_id":7,"file_type":"D2","status":"finished"}`))).To(Succeed())

		entries := logs.FilterMessage("generation event").All()
		Expect(entries).To(HaveLen(1))
		fields := entries[0].ContextMap()
		Expect(fields).To(HaveKeyWithValue("job_id", int64(7)))
		Expect(fields).To(HaveKeyWithValue("status", "finished"))
		Expect(fields).To(HaveKeyWithValue("topic", defaultTopic))
		Expect(entries[0].LoggerName).To(Equal("generation_events"))
	})

	It("logs other payloads as they are", func() {
		w := NewStdoutWriter()
		Expect(w.Write(context.TODO(), defaultTopic, event(`{"other":true}`))).To(Succeed())

		fields := logs.FilterMessage("generation event").All()[0].ContextMap()
		Expect(fields).To(HaveKeyWithValue("payload", `{"other":true}`))
		Expect(fields).ToNot(HaveKey("job_id"))
	})
})
