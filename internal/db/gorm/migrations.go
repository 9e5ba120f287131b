package gorm

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB, embeddingDims int) error {
	postgres := db.Dialector.Name() == "postgres"

	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: pgvector extension (PostgreSQL only)
		{
			ID: "001_vector_extension",
			Migrate: func(tx *gorm.DB) error {
				if !postgres {
					return nil
				}
				return tx.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error
			},
			Rollback: func(tx *gorm.DB) error {
				return nil
			},
		},

		// Migration 002: Core tables
		{
			ID: "002_core_tables",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&District{}, &Complaint{}, &ComplaintNormalization{}, &Incident{}); err != nil {
					return err
				}
				if tx.Migrator().HasColumn(&ComplaintNormalization{}, "embedding") {
					return nil
				}
				colType := "TEXT"
				if postgres {
					colType = fmt.Sprintf("vector(%d)", embeddingDims)
				}
				return tx.Exec("ALTER TABLE complaint_normalizations ADD COLUMN embedding " + colType).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("incidents", "complaint_normalizations", "complaints", "districts")
			},
		},

		// Migration 003: Partial indexes for the unassigned and current-row scans
		{
			ID: "003_clustering_indexes",
			Migrate: func(tx *gorm.DB) error {
				sqls := []string{
					`CREATE INDEX IF NOT EXISTS idx_complaints_unassigned ON complaints (id) WHERE incident_id IS NULL`,
					`CREATE INDEX IF NOT EXISTS idx_normalizations_current ON complaint_normalizations (complaint_id) WHERE is_current`,
					`CREATE INDEX IF NOT EXISTS idx_incidents_status_opened ON incidents (status, opened_at)`,
				}
				for _, s := range sqls {
					if err := tx.Exec(s).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				sqls := []string{
					"DROP INDEX IF EXISTS idx_complaints_unassigned",
					"DROP INDEX IF EXISTS idx_normalizations_current",
					"DROP INDEX IF EXISTS idx_incidents_status_opened",
				}
				for _, s := range sqls {
					if err := tx.Exec(s).Error; err != nil {
						return err
					}
				}
				return nil
			},
		},
	})

	return m.Migrate()
}
