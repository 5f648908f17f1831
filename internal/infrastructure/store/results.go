package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/execution"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/ports"
)

const valueBatchSize = 500

// WithinTransaction runs fn in a transaction. Nested calls use savepoints.
func (s *Store) WithinTransaction(ctx context.Context, fn func(tx ports.ResultStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(s.withDB(tx))
	})
}

// MarkExecutionFailed records a terminal failure. The group's dirty flag is left
// alone so the next pass retries it.
func (s *Store) MarkExecutionFailed(ctx context.Context, executionID uint) error {
	res := s.db.WithContext(ctx).Model(&executionModel{}).
		Where("id = ?", executionID).
		Update("successful", false)
	if res.Error != nil {
		return fmt.Errorf("mark execution %d failed: %w", executionID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("execution %d: %w", executionID, ErrNotFound)
	}
	return nil
}

// MarkExecutionSuccessful records the result path and clears the owning group's
// dirty flag in one transaction.
func (s *Store) MarkExecutionSuccessful(ctx context.Context, executionID uint, path string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m executionModel
		if err := tx.First(&m, executionID).Error; err != nil {
			return fmt.Errorf("execution %d: %w", executionID, notFound(err))
		}
		if err := tx.Model(&m).Updates(map[string]interface{}{"successful": true, "path": path}).Error; err != nil {
			return fmt.Errorf("mark execution %d successful: %w", executionID, err)
		}
		if err := tx.Model(&groupModel{}).Where("id = ?", m.GroupID).Update("dirty", false).Error; err != nil {
			return fmt.Errorf("clear group %d: %w", m.GroupID, err)
		}
		return nil
	})
}

// InsertMetricValues bulk inserts values in a nested transaction. Inside an outer
// transaction a failure rolls back to the savepoint and leaves the outer work intact.
func (s *Store) InsertMetricValues(ctx context.Context, executionID uint, values []execution.MetricValue) error {
	if len(values) == 0 {
		return nil
	}
	rows := make([]metricValueModel, len(values))
	for i, v := range values {
		rows[i] = newMetricValueModel(executionID, v)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.CreateInBatches(&rows, valueBatchSize).Error; err != nil {
			return fmt.Errorf("insert metric values for execution %d: %w", executionID, err)
		}
		return nil
	})
}

// MetricValues returns the values stored for an execution in insertion order.
func (s *Store) MetricValues(ctx context.Context, executionID uint) ([]execution.MetricValue, error) {
	var rows []metricValueModel
	if err := s.db.WithContext(ctx).Where("execution_id = ?", executionID).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load metric values: %w", err)
	}
	out := make([]execution.MetricValue, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// RegisterOutputs records the plots, data and html files an execution produced in
// a nested transaction, so a failure inside an outer transaction rolls back to the
// savepoint only.
func (s *Store) RegisterOutputs(ctx context.Context, executionID uint, outputs []execution.Output) error {
	if len(outputs) == 0 {
		return nil
	}
	rows := make([]executionOutputModel, len(outputs))
	for i, o := range outputs {
		rows[i] = executionOutputModel{
			ExecutionID: executionID,
			Type:        string(o.Type),
			ShortName:   o.ShortName,
			Filename:    o.Filename,
			LongName:    o.LongName,
			Description: o.Description,
		}
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("register outputs for execution %d: %w", executionID, err)
		}
		return nil
	})
}

// Outputs returns the files registered for an execution.
func (s *Store) Outputs(ctx context.Context, executionID uint) ([]execution.Output, error) {
	var rows []executionOutputModel
	if err := s.db.WithContext(ctx).Where("execution_id = ?", executionID).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load outputs: %w", err)
	}
	out := make([]execution.Output, len(rows))
	for i, r := range rows {
		out[i] = execution.Output{
			Type:        execution.OutputType(r.Type),
			ShortName:   r.ShortName,
			Filename:    r.Filename,
			LongName:    r.LongName,
			Description: r.Description,
		}
	}
	return out, nil
}
