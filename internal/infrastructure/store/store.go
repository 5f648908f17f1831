// Package store persists datasets, execution groups and their execution history
// with gorm. SQLite and PostgreSQL are supported.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/execution"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/infrastructure/logging"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/ports"
	referrors "github.com/skoriche/Climate-REF4CMIP-sub000/pkg/errors"
)

var (
	_ ports.ExecutionStore = (*Store)(nil)
	_ ports.ResultStore    = (*Store)(nil)
	_ ports.CatalogSource  = (*Store)(nil)
)

// ErrNotFound is returned when a referenced group or execution does not exist.
var ErrNotFound = errors.New("not found")

// Store is the gorm-backed implementation of the execution, result and catalog
// ports. A Store returned by InTransaction is bound to that transaction.
type Store struct {
	db     *gorm.DB
	logger ports.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithStoreLogger injects a logger.
func WithStoreLogger(logger ports.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open connects to url and migrates the schema. Supported forms are
// sqlite://<path>, sqlite://:memory: and postgres://... (or postgresql://...).
func Open(url string, opts ...Option) (*Store, error) {
	dialector, memory, err := dialectorFor(url)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if memory {
		// Every pooled connection would otherwise see its own empty database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return New(db, opts...)
}

func dialectorFor(url string) (gorm.Dialector, bool, error) {
	switch {
	case strings.HasPrefix(url, "sqlite://"):
		path := strings.TrimPrefix(url, "sqlite://")
		if path == "" {
			path = ":memory:"
		}
		return sqlite.Open(path), path == ":memory:", nil
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return postgres.Open(url), false, nil
	default:
		return nil, false, referrors.NewConfigurationError("db.database_url",
			fmt.Sprintf("unsupported database url %q", url), nil)
	}
}

// New wraps an open gorm connection and migrates the schema.
func New(db *gorm.DB, opts ...Option) (*Store, error) {
	s := &Store{db: db, logger: logging.NewNoOpLogger()}
	for _, opt := range opts {
		opt(s)
	}
	if err := db.AutoMigrate(allModels...); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) withDB(db *gorm.DB) *Store {
	return &Store{db: db, logger: s.logger}
}

// InTransaction runs fn in a transaction. Nested calls use savepoints.
func (s *Store) InTransaction(ctx context.Context, fn func(tx ports.ExecutionStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(s.withDB(tx))
	})
}

// GetOrCreateGroup inserts the group dirty if no row exists for
// (diagnosticID, key). A concurrent insert of the same pair is absorbed by the
// unique index and the existing row is returned.
func (s *Store) GetOrCreateGroup(ctx context.Context, diagnosticID, key string, selectors map[string]map[string]string) (*execution.Group, bool, error) {
	db := s.db.WithContext(ctx)

	m := groupModel{DiagnosticID: diagnosticID, Key: key, Dirty: true, Selectors: selectors}
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "diagnostic_id"}, {Name: "key"}},
		DoNothing: true,
	}).Create(&m)
	if res.Error != nil {
		return nil, false, fmt.Errorf("create group: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		s.logger.Debug(ctx, "created execution group", "diagnostic", diagnosticID, "group_key", key, "group_id", m.ID)
		return m.toDomain(), true, nil
	}

	var existing groupModel
	err := db.Where(map[string]interface{}{"diagnostic_id": diagnosticID, "key": key}).First(&existing).Error
	if err != nil {
		return nil, false, fmt.Errorf("load group: %w", err)
	}
	return existing.toDomain(), false, nil
}

// FindGroup returns the group for (diagnosticID, key) without creating it.
func (s *Store) FindGroup(ctx context.Context, diagnosticID, key string) (*execution.Group, error) {
	var m groupModel
	err := s.db.WithContext(ctx).
		Where(map[string]interface{}{"diagnostic_id": diagnosticID, "key": key}).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load group: %w", err)
	}
	return m.toDomain(), nil
}

// LatestExecution returns the group's most recent execution. Executions created
// in the same instant are ordered by insertion.
func (s *Store) LatestExecution(ctx context.Context, groupID uint) (*execution.Execution, error) {
	var m executionModel
	err := s.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("created_at DESC").Order("id DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load latest execution: %w", err)
	}
	return m.toDomain(), nil
}

// CreateExecution inserts exec, filling in its ID and creation time, and links it
// to the datasets with the given slugs. Unknown slugs are ignored.
func (s *Store) CreateExecution(ctx context.Context, exec *execution.Execution, datasetSlugs []string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m := executionModel{
			GroupID:        exec.GroupID,
			DatasetHash:    exec.DatasetHash,
			OutputFragment: exec.OutputFragment,
		}
		if err := tx.Create(&m).Error; err != nil {
			return fmt.Errorf("create execution: %w", err)
		}
		exec.ID = m.ID
		exec.CreatedAt = m.CreatedAt

		if len(datasetSlugs) == 0 {
			return nil
		}
		var ids []uint
		if err := tx.Model(&datasetModel{}).Where("slug IN ?", datasetSlugs).Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("resolve datasets: %w", err)
		}
		if len(ids) < len(datasetSlugs) {
			s.logger.Debug(ctx, "execution references datasets that are not ingested",
				"execution_id", m.ID, "requested", len(datasetSlugs), "found", len(ids))
		}
		if len(ids) == 0 {
			return nil
		}
		links := make([]executionDatasetModel, len(ids))
		for i, id := range ids {
			links[i] = executionDatasetModel{ExecutionID: m.ID, DatasetID: id}
		}
		if err := tx.Create(&links).Error; err != nil {
			return fmt.Errorf("link datasets: %w", err)
		}
		return nil
	})
}

// SetGroupDirty flags a group for re-execution, or clears the flag.
func (s *Store) SetGroupDirty(ctx context.Context, groupID uint, dirty bool) error {
	res := s.db.WithContext(ctx).Model(&groupModel{}).Where("id = ?", groupID).Update("dirty", dirty)
	if res.Error != nil {
		return fmt.Errorf("update group %d: %w", groupID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("group %d: %w", groupID, ErrNotFound)
	}
	return nil
}

// ExecutionDatasetSlugs returns the slugs of the datasets linked to an execution.
func (s *Store) ExecutionDatasetSlugs(ctx context.Context, executionID uint) ([]string, error) {
	var slugs []string
	err := s.db.WithContext(ctx).
		Model(&datasetModel{}).
		Joins("JOIN execution_datasets ON execution_datasets.dataset_id = datasets.id").
		Where("execution_datasets.execution_id = ?", executionID).
		Order("datasets.slug").
		Pluck("datasets.slug", &slugs).Error
	if err != nil {
		return nil, fmt.Errorf("load execution datasets: %w", err)
	}
	return slugs, nil
}
