// Package migrations provides database migration management for nexus.
package migrations

import (
	"gorm.io/gorm"

	"github.com/zerodaily/nexus/internal/models"
)

// AllMigrations returns all registered migrations in order.
//   - 001: Document store schema (documents table)
func AllMigrations() []Migration {
	return []Migration{
		migration001Documents(),
	}
}

// migration001Documents creates the documents table every persisted domain
// object lives in: pipeline state, buffer videos, incidents, cost sheets,
// budget, quota counters, review items.
func migration001Documents() Migration {
	return Migration{
		Version:     "001",
		Description: "Create document store schema",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&models.Document{})
		},
		Down: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&models.Document{})
		},
	}
}
