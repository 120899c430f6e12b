package service_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/fedspending/data-broker/internal/service"
	"github.com/fedspending/data-broker/internal/store"
	"github.com/fedspending/data-broker/internal/store/model"
	testhelpers "github.com/fedspending/data-broker/internal/test_helpers"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

const updateJobCountsStm = "UPDATE jobs SET number_of_rows = %d, number_of_errors = %d, original_filename = '%s' WHERE id = %d;"

var _ = Describe("submission service", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
		ctx    = context.TODO()
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

	It("aggregates the validation jobs of a submission", func() {
		Expect(gormdb.Exec(fmt.Sprintf(insertSubmissionStm, 1, "020")).Error).To(BeNil())
		Expect(gormdb.Exec(fmt.Sprintf(insertJobStm, 10, 1, "D2", "file_upload", "finished")).Error).To(BeNil())
		Expect(gormdb.Exec(fmt.Sprintf(insertJobStm, 11, 1, "D2", "csv_record_validation", "finished")).Error).To(BeNil())
		Expect(gormdb.Exec(fmt.Sprintf(insertJobStm, 12, 1, "D1", "csv_record_validation", "finished")).Error).To(BeNil())
		Expect(gormdb.Exec(fmt.Sprintf(insertJobStm, 13, 1, "C", "csv_record_validation", "invalid")).Error).To(BeNil())
		Expect(gormdb.Exec(fmt.Sprintf(updateJobCountsStm, 100, 0, "d2.csv", 10)).Error).To(BeNil())
		Expect(gormdb.Exec(fmt.Sprintf(updateJobCountsStm, 100, 4, "d2.csv", 11)).Error).To(BeNil())
		Expect(gormdb.Exec(fmt.Sprintf(updateJobCountsStm, 20, 1, "c.csv", 13)).Error).To(BeNil())
		Expect(gormdb.Exec(fmt.Sprintf(insertErrorStm, 11, "fain", 6, "C23", 4, model.SeverityFatal)).Error).To(BeNil())
		Expect(gormdb.Exec(fmt.Sprintf(insertErrorStm, 11, "piid", 8, "", 2, model.SeverityWarning)).Error).To(BeNil())

		result, err := service.NewSubmissionService(s).GetAggregatedSubmissionStatus(ctx, 1)
		Expect(err).To(BeNil())
		Expect(result.AgencyCode).To(Equal("020"))
		Expect(result.NumberOfRows).To(Equal(int64(220)))
		Expect(result.NumberOfErrors).To(Equal(int64(5)))
		Expect(result.CreatedOn).ToNot(BeEmpty())

		Expect(result.Jobs).To(HaveLen(2))
		d2 := result.Jobs[0]
		Expect(d2.JobID).To(Equal(int64(11)))
		Expect(d2.FileType).To(Equal(model.FileTypeAward))
		Expect(d2.Filename).To(Equal("d2.csv"))
		Expect(d2.ErrorData).To(HaveLen(1))
		Expect(d2.ErrorData[0].ErrorName).To(Equal("rule_failed"))
		Expect(d2.ErrorData[0].Description).To(Equal("C23"))
		Expect(d2.ErrorData[0].Occurrences).To(Equal(int64(4)))
		Expect(d2.WarningData).To(HaveLen(1))
		Expect(d2.WarningData[0].ErrorName).To(Equal("length_error"))

		Expect(result.Jobs[1].JobID).To(Equal(int64(13)))
		Expect(result.Jobs[1].Status).To(Equal(model.JobStatusInvalid))
		Expect(result.Jobs[1].ErrorData).To(BeEmpty())
	})

	It("reports a missing submission", func() {
		_, err := service.NewSubmissionService(s).GetAggregatedSubmissionStatus(ctx, 404)
		var notFound *service.ErrSubmissionNotFound
		Expect(errors.As(err, &notFound)).To(BeTrue())
	})
})
