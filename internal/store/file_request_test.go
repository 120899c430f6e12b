package store_test

import (
	"context"
	"sync"
	"time"

	"github.com/fedspending/data-broker/internal/store"
	"github.com/fedspending/data-broker/internal/store/model"
	testhelpers "github.com/fedspending/data-broker/internal/test_helpers"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

var _ = Describe("file request store", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
		key    model.CacheKey
		today  time.Time
	)

	BeforeAll(func() {
		st, db, err := testhelpers.NewSQLiteStore(GinkgoT().TempDir())
		Expect(err).To(BeNil())
		s = st
		gormdb = db

		key = model.CacheKey{
			FileType:   model.FileTypeAward,
			AgencyCode: "020",
			StartDate:  testhelpers.Date(2021, time.January, 1),
			EndDate:    testhelpers.Date(2021, time.March, 31),
		}
		today = time.Date(2021, time.April, 12, 15, 4, 5, 0, time.UTC)
	})

	AfterAll(func() {
		s.Close()
	})

	Context("resolve", func() {
		It("claims the first request of a key", func() {
			resolution, err := s.FileRequest().Resolve(context.TODO(), key, 1, today)
			Expect(err).To(BeNil())
			Expect(resolution.Kind).To(Equal(store.ResolutionMiss))

			request, err := s.FileRequest().Get(context.TODO(), 1)
			Expect(err).To(BeNil())
			Expect(request.IsCachedFile).To(BeTrue())
			Expect(request.ParentJobID).To(BeNil())
			Expect(request.RequestDate.Equal(model.Day(today))).To(BeTrue())
		})

		It("attaches a second request to the canonical one", func() {
			_, err := s.FileRequest().Resolve(context.TODO(), key, 1, today)
			Expect(err).To(BeNil())

			resolution, err := s.FileRequest().Resolve(context.TODO(), key, 2, today)
			Expect(err).To(BeNil())
			Expect(resolution.Kind).To(Equal(store.ResolutionWaitOn))
			Expect(resolution.ParentJobID).To(Equal(int64(1)))

			request, err := s.FileRequest().Get(context.TODO(), 2)
			Expect(err).To(BeNil())
			Expect(request.IsCachedFile).To(BeFalse())
			Expect(*request.ParentJobID).To(Equal(int64(1)))

			children, err := s.FileRequest().ListChildren(context.TODO(), 1)
			Expect(err).To(BeNil())
			Expect(children).To(HaveLen(1))
			Expect(children[0].JobID).To(Equal(int64(2)))
		})

		It("hits when the job already holds the canonical output", func() {
			_, err := s.FileRequest().Resolve(context.TODO(), key, 1, today)
			Expect(err).To(BeNil())

			resolution, err := s.FileRequest().Resolve(context.TODO(), key, 1, today.Add(time.Hour))
			Expect(err).To(BeNil())
			Expect(resolution.Kind).To(Equal(store.ResolutionHit))
		})

		It("expires requests from a previous day", func() {
			_, err := s.FileRequest().Resolve(context.TODO(), key, 1, today)
			Expect(err).To(BeNil())

			tomorrow := today.AddDate(0, 0, 1)
			resolution, err := s.FileRequest().Resolve(context.TODO(), key, 1, tomorrow)
			Expect(err).To(BeNil())
			Expect(resolution.Kind).To(Equal(store.ResolutionMiss))
			Expect(resolution.Request.RequestDate.Equal(model.Day(tomorrow))).To(BeTrue())
		})

		It("misses for another job on the next day although yesterday's request is still cached", func() {
			_, err := s.FileRequest().Resolve(context.TODO(), key, 1, today)
			Expect(err).To(BeNil())

			resolution, err := s.FileRequest().Resolve(context.TODO(), key, 3, today.AddDate(0, 0, 1))
			Expect(err).To(BeNil())
			Expect(resolution.Kind).To(Equal(store.ResolutionMiss))

			yesterday, err := s.FileRequest().Get(context.TODO(), 1)
			Expect(err).To(BeNil())
			Expect(yesterday.IsCachedFile).To(BeTrue())
		})

		It("does not share output between different keys", func() {
			_, err := s.FileRequest().Resolve(context.TODO(), key, 1, today)
			Expect(err).To(BeNil())

			other := key
			other.AgencyCode = "097"
			resolution, err := s.FileRequest().Resolve(context.TODO(), other, 2, today)
			Expect(err).To(BeNil())
			Expect(resolution.Kind).To(Equal(store.ResolutionMiss))
		})

		It("selects exactly one canonical request under concurrent resolves", func() {
			const jobs = 8

			var wg sync.WaitGroup
			kinds := make([]store.ResolutionKind, jobs)
			errs := make([]error, jobs)
			for i := 0; i < jobs; i++ {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					resolution, err := s.FileRequest().Resolve(context.TODO(), key, int64(i+1), today)
					errs[i] = err
					if err == nil {
						kinds[i] = resolution.Kind
					}
				}(i)
			}
			wg.Wait()

			misses := 0
			for i := 0; i < jobs; i++ {
				Expect(errs[i]).To(BeNil())
				if kinds[i] == store.ResolutionMiss {
					misses++
				} else {
					Expect(kinds[i]).To(Equal(store.ResolutionWaitOn))
				}
			}
			Expect(misses).To(Equal(1))

			count := 0
			err := gormdb.Raw("SELECT COUNT(*) FROM file_requests WHERE is_cached_file = ?;", true).Scan(&count).Error
			Expect(err).To(BeNil())
			Expect(count).To(Equal(1))

			canonical, err := s.FileRequest().FindCanonical(context.TODO(), key, today)
			Expect(err).To(BeNil())
			children, err := s.FileRequest().ListChildren(context.TODO(), canonical.JobID)
			Expect(err).To(BeNil())
			Expect(children).To(HaveLen(jobs - 1))
		})
	})

	Context("updates", func() {
		It("clears the canonical flag", func() {
			_, err := s.FileRequest().Resolve(context.TODO(), key, 1, today)
			Expect(err).To(BeNil())

			Expect(s.FileRequest().SetCached(context.TODO(), 1, false)).To(BeNil())

			_, err = s.FileRequest().FindCanonical(context.TODO(), key, today)
			Expect(err).To(MatchError(store.ErrRecordNotFound))
		})

		It("detaches a child", func() {
			_, err := s.FileRequest().Resolve(context.TODO(), key, 1, today)
			Expect(err).To(BeNil())
			_, err = s.FileRequest().Resolve(context.TODO(), key, 2, today)
			Expect(err).To(BeNil())

			Expect(s.FileRequest().Detach(context.TODO(), 2)).To(BeNil())

			children, err := s.FileRequest().ListChildren(context.TODO(), 1)
			Expect(err).To(BeNil())
			Expect(children).To(BeEmpty())
		})

		It("upserts a request", func() {
			request := model.FileRequest{
				JobID:       5,
				RequestDate: today,
				FileType:    key.FileType,
				AgencyCode:  key.AgencyCode,
				StartDate:   key.StartDate,
				EndDate:     key.EndDate,
			}
			_, err := s.FileRequest().Upsert(context.TODO(), request)
			Expect(err).To(BeNil())

			request.IsCachedFile = true
			_, err = s.FileRequest().Upsert(context.TODO(), request)
			Expect(err).To(BeNil())

			stored, err := s.FileRequest().Get(context.TODO(), 5)
			Expect(err).To(BeNil())
			Expect(stored.IsCachedFile).To(BeTrue())
		})
	})

	AfterEach(func() {
		testhelpers.Truncate(gormdb)
	})
})
