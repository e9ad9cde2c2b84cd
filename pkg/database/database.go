package database

import (
	"fmt"
	"time"

	"github.com/careledger/careledger/internal/config"
	"github.com/careledger/careledger/internal/domain"
	"github.com/careledger/careledger/internal/domain/access"
	"github.com/careledger/careledger/internal/domain/profile"
	"github.com/careledger/careledger/internal/domain/record"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger:      gormlogger.Default.LogMode(gormlogger.Silent),
		PrepareStmt: true,
		// Duplicate-key violations become gorm.ErrDuplicatedKey, which the
		// repositories translate to domain conflict errors.
		TranslateError: true,
	}

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.DSN(),
		PreferSimpleProtocol: false,
	}), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return db, nil
}

func Migrate(db *gorm.DB, log *zap.Logger) error {
	log.Info("running database migrations")
	start := time.Now()

	schemas := []string{"ledger", "consent", "profiles", "auth", "audit"} // logical namespaces
	for _, schema := range schemas {
		if err := db.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)).Error; err != nil {
			return fmt.Errorf("creating schema %s: %w", schema, err)
		}
	}

	models := []any{
		&domain.User{},
		&domain.AuditLog{},
		&record.Record{},
		&record.Version{},
		&record.Commit{},
		&access.AccessRequest{},
		&profile.DoctorProfile{},
		&profile.PatientProfile{},
	}

	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto-migrating models: %w", err)
	}

	if err := createIndexes(db); err != nil {
		return fmt.Errorf("creating indexes: %w", err)
	}

	log.Info("migrations completed", zap.Duration("duration", time.Since(start)))
	return nil
}

func createIndexes(db *gorm.DB) error {
	indexes := []struct {
		name  string
		query string
	}{
		// At most one pending/approved request per (doctor, patient) pair:
		// the backstop for races past the in-transaction existence check.
		{
			name:  "idx_access_requests_one_active",
			query: `CREATE UNIQUE INDEX IF NOT EXISTS idx_access_requests_one_active ON consent.access_requests (doctor_id, patient_id) WHERE status IN ('pending', 'approved')`,
		},
		// Sweep scan: approved grants ordered by expiry.
		{
			name:  "idx_access_requests_sweep",
			query: `CREATE INDEX IF NOT EXISTS idx_access_requests_sweep ON consent.access_requests (expires_at) WHERE status = 'approved'`,
		},
		// Patient commit log reads newest-first in one pass.
		{
			name:  "idx_commits_patient_time",
			query: `CREATE INDEX IF NOT EXISTS idx_commits_patient_time ON ledger.commits (patient_id, created_at DESC)`,
		},
	}

	for _, idx := range indexes {
		if err := db.Exec(idx.query).Error; err != nil {
			return fmt.Errorf("creating index %s: %w", idx.name, err)
		}
	}

	return nil
}
