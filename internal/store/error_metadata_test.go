package store_test

import (
	"context"

	"github.com/fedspending/data-broker/internal/store"
	"github.com/fedspending/data-broker/internal/store/model"
	testhelpers "github.com/fedspending/data-broker/internal/test_helpers"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

var _ = Describe("error metadata store", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
	)

	severity := func(id int) *int { return &id }

	BeforeAll(func() {
		st, db, err := testhelpers.NewSQLiteStore(GinkgoT().TempDir())
		Expect(err).To(BeNil())
		s = st
		gormdb = db
	})

	AfterAll(func() {
		s.Close()
	})

	It("sums occurrences per job and severity", func() {
		err := s.ErrorMetadata().CreateBatch(context.TODO(), model.ErrorMetadataList{
			{JobID: 1, FieldName: "piid", ErrorTypeID: 4, Occurrences: 3, SeverityID: severity(model.SeverityFatal)},
			{JobID: 1, FieldName: "uei", ErrorTypeID: 3, Occurrences: 2, SeverityID: severity(model.SeverityFatal)},
			{JobID: 1, FieldName: "fain", ErrorTypeID: 8, Occurrences: 5, SeverityID: severity(model.SeverityWarning)},
			{JobID: 2, FieldName: "piid", ErrorTypeID: 4, Occurrences: 7, SeverityID: severity(model.SeverityFatal)},
		})
		Expect(err).To(BeNil())

		fatal, err := s.ErrorMetadata().SumOccurrences(context.TODO(), 1, model.SeverityFatal)
		Expect(err).To(BeNil())
		Expect(fatal).To(Equal(int64(5)))

		warnings, err := s.ErrorMetadata().SumOccurrences(context.TODO(), 1, model.SeverityWarning)
		Expect(err).To(BeNil())
		Expect(warnings).To(Equal(int64(5)))

		none, err := s.ErrorMetadata().SumOccurrences(context.TODO(), 3, model.SeverityFatal)
		Expect(err).To(BeNil())
		Expect(none).To(BeZero())
	})

	It("lists the rows of a job", func() {
		err := s.ErrorMetadata().CreateBatch(context.TODO(), model.ErrorMetadataList{
			{JobID: 1, FieldName: "piid", ErrorTypeID: 4, Occurrences: 3},
			{JobID: 2, FieldName: "piid", ErrorTypeID: 4, Occurrences: 7},
		})
		Expect(err).To(BeNil())

		rows, err := s.ErrorMetadata().List(context.TODO(), store.NewErrorMetadataQueryFilter().ByJobID(2))
		Expect(err).To(BeNil())
		Expect(rows).To(HaveLen(1))
		Expect(rows[0].Occurrences).To(Equal(int64(7)))
	})

	AfterEach(func() {
		testhelpers.Truncate(gormdb)
	})
})
