package migrations_test

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/fedspending/data-broker/internal/config"
	"github.com/fedspending/data-broker/internal/store"
	"github.com/fedspending/data-broker/pkg/migrations"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

var _ = Describe("migrations", Ordered, func() {
	var (
		cfg    *config.Config
		gormdb *gorm.DB
	)

	BeforeAll(func() {
		var err error
		cfg, err = config.NewDefault()
		Expect(err).To(BeNil())
		if cfg.Database.Type != "pgsql" {
			cfg.Database.Name = filepath.Join(GinkgoT().TempDir(), "broker.db")
		}

		gormdb, err = store.InitDB(cfg)
		Expect(err).To(BeNil())
	})

	AfterAll(func() {
		_ = store.NewStore(gormdb).Close()
	})

	Context("store migrations", Ordered, func() {
		It("fails to migrate the db -- migration folder does not exists", func() {
			err := migrations.MigrateStore(gormdb, "some folder")
			Expect(err).NotTo(BeNil())
		})

		It("fails to migrate the db -- migration folder is a file", func() {
			file := filepath.Join(GinkgoT().TempDir(), "migration.sql")
			Expect(os.WriteFile(file, []byte("-- +goose Up"), 0o600)).To(Succeed())

			err := migrations.MigrateStore(gormdb, file)
			Expect(err).To(MatchError(ContainSubstring("is not a folder")))
		})

		It("sucessfully migrate the db", func() {
			if cfg.Database.Type != "pgsql" {
				Skip("migrations are written for PostgreSQL")
			}

			currentFolder, err := os.Getwd()
			Expect(err).To(BeNil())

			err = migrations.MigrateStore(gormdb, path.Join(currentFolder, "sql"))
			Expect(err).To(BeNil())

			tableExists := func(name string) bool {
				exists := false
				tx := gormdb.Raw(fmt.Sprintf("SELECT EXISTS (SELECT FROM pg_tables WHERE schemaname = 'public' and tablename = '%s');", name)).Scan(&exists)
				Expect(tx.Error).To(BeNil())

				return exists
			}

			for _, table := range []string{"submissions", "jobs", "file_requests", "error_metadata", "generation_tasks"} {
				Expect(tableExists(table)).To(BeTrue())
			}
		})

		It("sucessfully migrate the db from the embedded migrations", func() {
			if cfg.Database.Type != "pgsql" {
				Skip("migrations are written for PostgreSQL")
			}

			Expect(migrations.MigrateStore(gormdb, "")).To(Succeed())
		})

		AfterEach(func() {
			if cfg.Database.Type != "pgsql" {
				return
			}
			gormdb.Exec("DROP TABLE IF EXISTS generation_tasks;")
			gormdb.Exec("DROP TABLE IF EXISTS error_metadata;")
			gormdb.Exec("DROP TABLE IF EXISTS file_requests;")
			gormdb.Exec("DROP TABLE IF EXISTS jobs;")
			gormdb.Exec("DROP TABLE IF EXISTS submissions;")
			gormdb.Exec("DROP TABLE IF EXISTS goose_db_version;")
		})
	})
})
