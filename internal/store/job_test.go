package store_test

import (
	"context"
	"fmt"

	"github.com/fedspending/data-broker/internal/store"
	"github.com/fedspending/data-broker/internal/store/model"
	testhelpers "github.com/fedspending/data-broker/internal/test_helpers"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

const (
	insertJobStm = "INSERT INTO jobs (id, submission_id, file_type, job_type, status) VALUES (%d, %s, '%s', '%s', '%s');"
)

var _ = Describe("job store", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
	)

	BeforeAll(func() {
		st, db, err := testhelpers.NewSQLiteStore(GinkgoT().TempDir())
		Expect(err).To(BeNil())
		s = st
		gormdb = db
	})

	AfterAll(func() {
		s.Close()
	})

	Context("list", func() {
		It("successfully list the jobs of a submission", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertJobStm, 1, "10", "D2", "file_upload", "finished"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertJobStm, 2, "10", "D2", "csv_record_validation", "running"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertJobStm, 3, "11", "D2", "file_upload", "waiting"))
			Expect(tx.Error).To(BeNil())

			jobs, err := s.Job().List(context.TODO(), store.NewJobQueryFilter().BySubmissionID(10))
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(2))

			jobs, err = s.Job().List(context.TODO(), store.NewJobQueryFilter().BySubmissionID(10).ByJobType(model.JobTypeValidation))
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(1))
			Expect(jobs[0].ID).To(Equal(int64(2)))
		})

		It("finds the job of a submission by file type and job type", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertJobStm, 1, "10", "D2", "file_upload", "finished"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertJobStm, 2, "10", "D2", "csv_record_validation", "running"))
			Expect(tx.Error).To(BeNil())

			job, err := s.Job().FindBySubmission(context.TODO(), 10, model.FileTypeAward, model.JobTypeValidation)
			Expect(err).To(BeNil())
			Expect(job.ID).To(Equal(int64(2)))

			_, err = s.Job().FindBySubmission(context.TODO(), 10, model.FileTypeExecutiveComp, model.JobTypeValidation)
			Expect(err).To(MatchError(store.ErrRecordNotFound))
		})
	})

	Context("update", func() {
		It("successfully update job columns", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertJobStm, 1, "NULL", "D1", "file_upload", "running"))
			Expect(tx.Error).To(BeNil())

			err := s.Job().Update(context.TODO(), 1, map[string]any{"filename": "user/d1.csv", "number_of_rows": 42})
			Expect(err).To(BeNil())

			job, err := s.Job().Get(context.TODO(), 1)
			Expect(err).To(BeNil())
			Expect(model.StringValue(job.Filename)).To(Equal("user/d1.csv"))
			Expect(job.NumberOfRows).To(Equal(int64(42)))
		})

		It("refuses to update the status through Update", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertJobStm, 1, "NULL", "D1", "file_upload", "running"))
			Expect(tx.Error).To(BeNil())

			err := s.Job().Update(context.TODO(), 1, map[string]any{"status": "finished"})
			Expect(err).ToNot(BeNil())
		})

		It("fails to update a missing job", func() {
			err := s.Job().Update(context.TODO(), 99, map[string]any{"filename": "x"})
			Expect(err).To(MatchError(store.ErrRecordNotFound))
		})
	})

	Context("status", func() {
		It("moves a running job to finished", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertJobStm, 1, "NULL", "D1", "file_upload", "running"))
			Expect(tx.Error).To(BeNil())

			Expect(s.Job().UpdateStatus(context.TODO(), 1, model.JobStatusFinished)).To(BeNil())

			job, err := s.Job().Get(context.TODO(), 1)
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusFinished))
		})

		It("never overwrites a failed job silently", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertJobStm, 1, "NULL", "D1", "file_upload", "failed"))
			Expect(tx.Error).To(BeNil())

			err := s.Job().UpdateStatus(context.TODO(), 1, model.JobStatusFinished)
			Expect(err).To(MatchError(store.ErrInvalidStatusTransition))

			job, err := s.Job().Get(context.TODO(), 1)
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusFailed))
		})

		It("restarts a failed job through running", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertJobStm, 1, "NULL", "D1", "file_upload", "failed"))
			Expect(tx.Error).To(BeNil())

			Expect(s.Job().UpdateStatus(context.TODO(), 1, model.JobStatusRunning)).To(BeNil())
			Expect(s.Job().UpdateStatus(context.TODO(), 1, model.JobStatusFinished)).To(BeNil())
		})

		It("accepts writing the current status again", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertJobStm, 1, "NULL", "D1", "file_upload", "finished"))
			Expect(tx.Error).To(BeNil())

			Expect(s.Job().UpdateStatus(context.TODO(), 1, model.JobStatusFinished)).To(BeNil())
		})
	})

	Context("statistics", func() {
		It("counts jobs by file type, job type and status", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertJobStm, 1, "10", "D2", "file_upload", "finished"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertJobStm, 2, "11", "D2", "file_upload", "finished"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertJobStm, 3, "11", "D2", "csv_record_validation", "waiting"))
			Expect(tx.Error).To(BeNil())

			counts, err := s.Job().CountByStatus(context.TODO())
			Expect(err).To(BeNil())
			Expect(counts).To(HaveLen(2))
			Expect(counts[0].JobType).To(Equal(model.JobTypeValidation))
			Expect(counts[0].Total).To(Equal(int64(1)))
			Expect(counts[1].JobType).To(Equal(model.JobTypeFileUpload))
			Expect(counts[1].Status).To(Equal(model.JobStatusFinished))
			Expect(counts[1].Total).To(Equal(int64(2)))
		})
	})

	AfterEach(func() {
		testhelpers.Truncate(gormdb)
	})
})
