package database

import (
	"context"

	"crm-automation-api/db/migrations"

	"go.uber.org/zap"
)

type migrationStep struct {
	name string
	up   string
	down string
}

var migrationSteps = []migrationStep{
	{"crm entities", migrations.CRMEntitiesUp, migrations.CRMEntitiesDown},
	{"automation engine", migrations.AutomationEngineUp, migrations.AutomationEngineDown},
}

// RunMigrations voert de database migraties uit wanneer enabled (RUN_MIGRATIONS) aan staat.
// Every step is idempotent so re-running on boot is safe.
func RunMigrations(ctx context.Context, db Querier, enabled bool, log *zap.Logger) error {
	if !enabled {
		log.Info("skipping migrations (RUN_MIGRATIONS is not 'true')", zap.String("component", "migrations"))
		return nil
	}

	log.Info("running database migrations", zap.String("component", "migrations"))

	for _, step := range migrationSteps {
		if _, err := db.Exec(ctx, step.up); err != nil {
			log.Error(step.name+" migration failed", zap.Error(err), zap.String("component", "migrations"))
			return err
		}
		log.Info(step.name+" migration applied successfully", zap.String("component", "migrations"))
	}

	log.Info("all database migrations applied successfully", zap.String("component", "migrations"))
	return nil
}

// RollbackMigrations draait de down-migraties in omgekeerde volgorde.
func RollbackMigrations(ctx context.Context, db Querier, log *zap.Logger) error {
	for i := len(migrationSteps) - 1; i >= 0; i-- {
		step := migrationSteps[i]
		if _, err := db.Exec(ctx, step.down); err != nil {
			log.Error(step.name+" rollback failed", zap.Error(err), zap.String("component", "migrations"))
			return err
		}
		log.Info(step.name+" rolled back", zap.String("component", "migrations"))
	}
	return nil
}
