package migration

import (
	"github.com/listingcraft/listingcraft/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB) error {
		// The embedded migrations are postgres-only; sqlite is a test and
		// local-dev dialect whose schema the tests create themselves.
		if conn.Dialector.Name() != "postgres" {
			return nil
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}

		if err := RunMigrations(sqlDB); err != nil {
			return err
		}

		return seed.EnsurePlans(conn)
	}),
)
