package store_test

import (
	"context"
	"errors"
	"time"

	"github.com/fedspending/data-broker/internal/store"
	"github.com/fedspending/data-broker/internal/store/model"
	testhelpers "github.com/fedspending/data-broker/internal/test_helpers"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

var _ = Describe("task store", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
	)

	newTask := func(jobID int64, maxAttempts int) model.GenerationTask {
		return model.GenerationTask{
			JobID:       jobID,
			MaxAttempts: maxAttempts,
			Args: model.GenerationArgs{
				FileType:        model.FileTypeAwardProcurement,
				AgencyCode:      "020",
				TimestampedName: "file_d1.csv",
			},
		}
	}

	BeforeAll(func() {
		st, db, err := testhelpers.NewSQLiteStore(GinkgoT().TempDir())
		Expect(err).To(BeNil())
		s = st
		gormdb = db
	})

	AfterAll(func() {
		s.Close()
	})

	Context("lease", func() {
		It("returns nil on an empty queue", func() {
			task, err := s.Task().Lease(context.TODO(), time.Minute)
			Expect(err).To(BeNil())
			Expect(task).To(BeNil())
		})

		It("leases the oldest available task once", func() {
			first, err := s.Task().Create(context.TODO(), newTask(1, 1))
			Expect(err).To(BeNil())
			_, err = s.Task().Create(context.TODO(), newTask(2, 1))
			Expect(err).To(BeNil())

			task, err := s.Task().Lease(context.TODO(), time.Minute)
			Expect(err).To(BeNil())
			Expect(task).ToNot(BeNil())
			Expect(task.ID).To(Equal(first.ID))
			Expect(task.State).To(Equal(model.TaskStateRunning))
			Expect(task.Attempts).To(Equal(1))
			Expect(task.LeaseToken).ToNot(BeNil())
			Expect(task.Args.TimestampedName).To(Equal("file_d1.csv"))

			second, err := s.Task().Lease(context.TODO(), time.Minute)
			Expect(err).To(BeNil())
			Expect(second.JobID).To(Equal(int64(2)))

			none, err := s.Task().Lease(context.TODO(), time.Minute)
			Expect(err).To(BeNil())
			Expect(none).To(BeNil())
		})
	})

	Context("complete", func() {
		It("completes a leased task", func() {
			_, err := s.Task().Create(context.TODO(), newTask(1, 1))
			Expect(err).To(BeNil())
			task, err := s.Task().Lease(context.TODO(), time.Minute)
			Expect(err).To(BeNil())

			Expect(s.Task().Complete(context.TODO(), task.ID, *task.LeaseToken, nil)).To(BeNil())

			stored, err := s.Task().Get(context.TODO(), task.ID)
			Expect(err).To(BeNil())
			Expect(stored.State).To(Equal(model.TaskStateCompleted))
			Expect(stored.LeaseToken).To(BeNil())
		})

		It("makes a failed task available again while attempts remain", func() {
			_, err := s.Task().Create(context.TODO(), newTask(1, 2))
			Expect(err).To(BeNil())

			task, err := s.Task().Lease(context.TODO(), time.Minute)
			Expect(err).To(BeNil())
			Expect(s.Task().Complete(context.TODO(), task.ID, *task.LeaseToken, errors.New("boom"))).To(BeNil())

			stored, err := s.Task().Get(context.TODO(), task.ID)
			Expect(err).To(BeNil())
			Expect(stored.State).To(Equal(model.TaskStateAvailable))
			Expect(model.StringValue(stored.LastError)).To(Equal("boom"))

			task, err = s.Task().Lease(context.TODO(), time.Minute)
			Expect(err).To(BeNil())
			Expect(task.Attempts).To(Equal(2))
			Expect(s.Task().Complete(context.TODO(), task.ID, *task.LeaseToken, errors.New("boom"))).To(BeNil())

			stored, err = s.Task().Get(context.TODO(), task.ID)
			Expect(err).To(BeNil())
			Expect(stored.State).To(Equal(model.TaskStateDiscarded))
		})

		It("refuses a stale lease token", func() {
			_, err := s.Task().Create(context.TODO(), newTask(1, 1))
			Expect(err).To(BeNil())
			task, err := s.Task().Lease(context.TODO(), time.Minute)
			Expect(err).To(BeNil())

			Expect(s.Task().Complete(context.TODO(), task.ID, "not-the-token", nil)).ToNot(BeNil())
		})
	})

	Context("active and expired", func() {
		It("finds the active task of a job", func() {
			_, err := s.Task().Create(context.TODO(), newTask(7, 1))
			Expect(err).To(BeNil())

			active, err := s.Task().FindActive(context.TODO(), 7)
			Expect(err).To(BeNil())
			Expect(active).ToNot(BeNil())

			task, err := s.Task().Lease(context.TODO(), time.Minute)
			Expect(err).To(BeNil())
			Expect(s.Task().Complete(context.TODO(), task.ID, *task.LeaseToken, nil)).To(BeNil())

			active, err = s.Task().FindActive(context.TODO(), 7)
			Expect(err).To(BeNil())
			Expect(active).To(BeNil())
		})

		It("reaps tasks whose lease ran out", func() {
			_, err := s.Task().Create(context.TODO(), newTask(1, 1))
			Expect(err).To(BeNil())
			_, err = s.Task().Create(context.TODO(), newTask(2, 1))
			Expect(err).To(BeNil())

			short, err := s.Task().Lease(context.TODO(), time.Millisecond)
			Expect(err).To(BeNil())
			_, err = s.Task().Lease(context.TODO(), time.Hour)
			Expect(err).To(BeNil())

			reaped, err := s.Task().ReapExpired(context.TODO(), time.Now().Add(time.Minute))
			Expect(err).To(BeNil())
			Expect(reaped).To(HaveLen(1))
			Expect(reaped[0].ID).To(Equal(short.ID))

			stored, err := s.Task().Get(context.TODO(), short.ID)
			Expect(err).To(BeNil())
			Expect(stored.State).To(Equal(model.TaskStateDiscarded))
		})
	})

	AfterEach(func() {
		testhelpers.Truncate(gormdb)
	})
})
