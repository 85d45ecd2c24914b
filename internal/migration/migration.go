package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	allocationdomain "github.com/smallbiznis/sponsorship/internal/allocation/domain"
	auditdomain "github.com/smallbiznis/sponsorship/internal/audit/domain"
	budgetdomain "github.com/smallbiznis/sponsorship/internal/budget/domain"
	ledgerdomain "github.com/smallbiznis/sponsorship/internal/ledger/domain"
	ruledomain "github.com/smallbiznis/sponsorship/internal/supportrule/domain"
	transactiondomain "github.com/smallbiznis/sponsorship/internal/transaction/domain"
	"gorm.io/gorm"
)

// RunMigrations applies the versioned postgres schema.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// Models lists every table owned by the service, in dependency order.
func Models() []any {
	return []any{
		&ruledomain.SupportRule{},
		&budgetdomain.BudgetCommit{},
		&allocationdomain.Allocation{},
		&transactiondomain.Transaction{},
		&ledgerdomain.LedgerEntry{},
		&ledgerdomain.LedgerEntryLine{},
		&auditdomain.AuditLog{},
	}
}

// AutoMigrate builds the schema from the models for sqlite and mysql, then adds
// the one-active-allocation constraint, which struct tags cannot express.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if db.Dialector.Name() == "mysql" {
		return ensureMySQLActiveIndex(db)
	}
	return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_allocations_active
		ON allocations (rule_id, user_id, program_id)
		WHERE status IN ('reserved', 'captured')`).Error
}

// MySQL has no partial indexes. A generated rule id that is NULL for released
// rows gives the same guarantee because unique indexes ignore NULLs.
func ensureMySQLActiveIndex(db *gorm.DB) error {
	for _, stmt := range mysqlActiveIndexStatements(db.Migrator()) {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("mysql active allocation index: %w", err)
		}
	}
	return nil
}

type schemaState interface {
	HasColumn(dst interface{}, field string) bool
	HasIndex(dst interface{}, name string) bool
}

// mysqlActiveIndexStatements returns the DDL still needed on the current schema.
// Schemas keyed on the older concatenated active_key column are converted.
func mysqlActiveIndexStatements(m schemaState) []string {
	model := &allocationdomain.Allocation{}
	var stmts []string
	hasIndex := m.HasIndex(model, "ux_allocations_active")
	if m.HasColumn(model, "active_key") {
		if hasIndex {
			stmts = append(stmts, `DROP INDEX ux_allocations_active ON allocations`)
			hasIndex = false
		}
		stmts = append(stmts, `ALTER TABLE allocations DROP COLUMN active_key`)
	}
	if !m.HasColumn(model, "active_rule_id") {
		stmts = append(stmts, `ALTER TABLE allocations ADD COLUMN active_rule_id BIGINT
			GENERATED ALWAYS AS (
				CASE WHEN status IN ('reserved', 'captured') THEN rule_id END
			) STORED`)
	}
	if !hasIndex {
		stmts = append(stmts, `CREATE UNIQUE INDEX ux_allocations_active
			ON allocations (active_rule_id, user_id, program_id)`)
	}
	return stmts
}
