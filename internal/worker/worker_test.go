package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fedspending/data-broker/internal/blob"
	"github.com/fedspending/data-broker/internal/generation"
	"github.com/fedspending/data-broker/internal/service"
	"github.com/fedspending/data-broker/internal/store"
	"github.com/fedspending/data-broker/internal/store/model"
	testhelpers "github.com/fedspending/data-broker/internal/test_helpers"
	"github.com/fedspending/data-broker/internal/worker"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

type recordingRunner struct {
	mu     sync.Mutex
	runs   []generation.Request
	failed []int64
	err    error
	block  bool
}

func (r *recordingRunner) Run(ctx context.Context, req generation.Request) error {
	r.mu.Lock()
	r.runs = append(r.runs, req)
	r.mu.Unlock()

	if r.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return r.err
}

func (r *recordingRunner) Fail(ctx context.Context, jobID int64, cause error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, jobID)
	return nil
}

func (r *recordingRunner) requests() []generation.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]generation.Request{}, r.runs...)
}

type rangeSource struct {
	total int
}

func (r rangeSource) Header() []string {
	return []string{"piid"}
}

func (r rangeSource) QueryPage(ctx context.Context, filter generation.Filter, offset, limit int) ([][]string, error) {
	page := [][]string{}
	for i := offset; i < offset+limit && i < r.total; i++ {
		page = append(page, []string{fmt.Sprintf("P%04d", i)})
	}
	return page, nil
}

var _ = Describe("worker", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
		ctx    = context.TODO()
		start  = testhelpers.Date(2021, time.January, 1)
		end    = testhelpers.Date(2021, time.March, 31)
	)

	BeforeAll(func() {
		var err error
		s, gormdb, err = testhelpers.NewSQLiteStore(GinkgoT().TempDir())
		Expect(err).To(BeNil())
	})

	AfterAll(func() {
		_ = s.Close()
	})

	AfterEach(func() {
		testhelpers.Truncate(gormdb)
	})

	enqueue := func(jobID int64) {
		err := generation.NewTaskQueue(s.Task()).Enqueue(ctx, generation.Request{
			JobID:           jobID,
			FileType:        model.FileTypeAwardProcurement,
			AgencyCode:      "020",
			Start:           start,
			End:             end,
			TimestampedName: "1618243200_award_procurement.csv",
		})
		Expect(err).To(BeNil())
	}

	Context("process", func() {
		It("reports an empty queue", func() {
			processed, err := worker.New(s.Task(), &recordingRunner{}).ProcessNext(ctx)
			Expect(err).To(BeNil())
			Expect(processed).To(BeFalse())
		})

		It("runs the leased task and completes it", func() {
			enqueue(7)
			runner := &recordingRunner{}

			processed, err := worker.New(s.Task(), runner).ProcessNext(ctx)
			Expect(err).To(BeNil())
			Expect(processed).To(BeTrue())

			requests := runner.requests()
			Expect(requests).To(HaveLen(1))
			Expect(requests[0].JobID).To(Equal(int64(7)))
			Expect(requests[0].AgencyCode).To(Equal("020"))
			Expect(requests[0].Start).To(BeTemporally("==", start))
			Expect(requests[0].End).To(BeTemporally("==", end))
			Expect(requests[0].TimestampedName).To(Equal("1618243200_award_procurement.csv"))

			task, err := s.Task().FindActive(ctx, 7)
			Expect(err).To(BeNil())
			Expect(task).To(BeNil())
		})

		It("discards a failed task", func() {
			enqueue(7)
			runner := &recordingRunner{err: errors.New("source unavailable")}

			processed, err := worker.New(s.Task(), runner).ProcessNext(ctx)
			Expect(err).To(BeNil())
			Expect(processed).To(BeTrue())

			var task model.GenerationTask
			Expect(gormdb.First(&task, "job_id = ?", 7).Error).To(BeNil())
			Expect(task.State).To(Equal(model.TaskStateDiscarded))
			Expect(model.StringValue(task.LastError)).To(Equal("source unavailable"))
		})

		It("cancels a run exceeding the job timeout", func() {
			enqueue(7)
			runner := &recordingRunner{block: true}

			w := worker.New(s.Task(), runner, worker.WithJobTimeout(50*time.Millisecond))
			processed, err := w.ProcessNext(ctx)
			Expect(err).To(BeNil())
			Expect(processed).To(BeTrue())

			var task model.GenerationTask
			Expect(gormdb.First(&task, "job_id = ?", 7).Error).To(BeNil())
			Expect(task.State).To(Equal(model.TaskStateDiscarded))
			Expect(model.StringValue(task.LastError)).To(ContainSubstring("deadline exceeded"))
		})
	})

	Context("reap", func() {
		It("fails the jobs of expired leases", func() {
			enqueue(7)
			enqueue(8)

			_, err := s.Task().Lease(ctx, -time.Minute)
			Expect(err).To(BeNil())

			runner := &recordingRunner{}
			reaped, err := worker.New(s.Task(), runner).Reap(ctx)
			Expect(err).To(BeNil())
			Expect(reaped).To(Equal(1))
			Expect(runner.failed).To(Equal([]int64{7}))

			task, err := s.Task().FindActive(ctx, 8)
			Expect(err).To(BeNil())
			Expect(task.State).To(Equal(model.TaskStateAvailable))
		})
	})

	Context("start", func() {
		It("generates the files of started generations", func() {
			blobs, err := blob.NewLocalStore(GinkgoT().TempDir())
			Expect(err).To(BeNil())

			sources := generation.NewSources().RegisterSource(model.FileTypeAwardProcurement, rangeSource{total: 42})
			queue := generation.NewTaskQueue(s.Task())
			pipeline := generation.NewPipeline(s, blobs, sources, generation.WithQueue(queue), generation.WithTempDir(GinkgoT().TempDir()))
			svc := service.NewGenerationService(s, blobs, queue)

			startDate, endDate := "01/01/2021", "03/31/2021"
			jobIDs := []int64{}
			for _, user := range []string{"alice", "bob"} {
				jobID, err := svc.StartGeneration(ctx, service.StartRequest{
					FileType:   model.FileTypeAwardProcurement,
					AgencyCode: "020",
					Start:      &startDate,
					End:        &endDate,
					UserID:     user,
				})
				Expect(err).To(BeNil())
				jobIDs = append(jobIDs, jobID)
			}

			runCtx, cancel := context.WithCancel(ctx)
			done := make(chan struct{})
			go func() {
				defer GinkgoRecover()
				defer close(done)
				worker.New(s.Task(), pipeline, worker.WithMaxWorkers(2), worker.WithPollInterval(20*time.Millisecond)).Start(runCtx)
			}()

			for _, jobID := range jobIDs {
				Eventually(func() model.JobStatus {
					job, err := s.Job().Get(ctx, jobID)
					Expect(err).To(BeNil())
					return job.Status
				}, 10*time.Second, 20*time.Millisecond).Should(Equal(model.JobStatusFinished))
			}

			cancel()
			Eventually(done, 5*time.Second).Should(BeClosed())

			for _, jobID := range jobIDs {
				job, err := s.Job().Get(ctx, jobID)
				Expect(err).To(BeNil())
				Expect(job.NumberOfRows).To(Equal(int64(42)))

				exists, err := blobs.Exists(ctx, model.StringValue(job.Filename))
				Expect(err).To(BeNil())
				Expect(exists).To(BeTrue())
			}
		})
	})
})
