package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/execution"
)

// GroupStatus is a group with its latest execution and derived cache state.
type GroupStatus struct {
	Group  execution.Group
	Latest *execution.Execution
	State  execution.State
	Runs   int64
}

// ListGroups returns every group whose diagnostic id contains any of filters, or
// all groups when none are given, ordered by diagnostic then key.
func (s *Store) ListGroups(ctx context.Context, filters ...string) ([]GroupStatus, error) {
	var groups []groupModel
	if err := s.db.WithContext(ctx).Order("diagnostic_id").Order("id").Find(&groups).Error; err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}

	var out []GroupStatus
	for _, g := range groups {
		if !containsAny(g.DiagnosticID, filters) {
			continue
		}
		latest, err := s.LatestExecution(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		var runs int64
		if err := s.db.WithContext(ctx).Model(&executionModel{}).Where("group_id = ?", g.ID).Count(&runs).Error; err != nil {
			return nil, fmt.Errorf("count executions: %w", err)
		}
		group := g.toDomain()
		out = append(out, GroupStatus{
			Group:  *group,
			Latest: latest,
			State:  execution.StateOf(*group, latest),
			Runs:   runs,
		})
	}
	return out, nil
}

// DeleteGroup removes a group and everything recorded against it: metric values,
// outputs, dataset links and executions. It returns the output fragments of the
// deleted executions so their artifacts can be removed.
func (s *Store) DeleteGroup(ctx context.Context, groupID uint) ([]string, error) {
	var fragments []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var g groupModel
		if err := tx.First(&g, groupID).Error; err != nil {
			return fmt.Errorf("group %d: %w", groupID, notFound(err))
		}

		var execs []executionModel
		if err := tx.Where("group_id = ?", groupID).Order("id").Find(&execs).Error; err != nil {
			return fmt.Errorf("load executions: %w", err)
		}
		ids := make([]uint, len(execs))
		for i, e := range execs {
			ids[i] = e.ID
			fragments = append(fragments, e.OutputFragment)
		}

		if len(ids) > 0 {
			for _, model := range []interface{}{&metricValueModel{}, &executionOutputModel{}, &executionDatasetModel{}} {
				if err := tx.Where("execution_id IN ?", ids).Delete(model).Error; err != nil {
					return fmt.Errorf("delete %T: %w", model, err)
				}
			}
			if err := tx.Where("id IN ?", ids).Delete(&executionModel{}).Error; err != nil {
				return fmt.Errorf("delete executions: %w", err)
			}
		}
		if err := tx.Delete(&g).Error; err != nil {
			return fmt.Errorf("delete group: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "deleted execution group", "group_id", groupID, "executions", len(fragments))
	return fragments, nil
}

// Executions returns a group's executions, most recent first.
func (s *Store) Executions(ctx context.Context, groupID uint) ([]execution.Execution, error) {
	var rows []executionModel
	err := s.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("created_at DESC").Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load executions of group %d: %w", groupID, err)
	}
	out := make([]execution.Execution, len(rows))
	for i, r := range rows {
		out[i] = *r.toDomain()
	}
	return out, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func containsAny(s string, filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if strings.Contains(s, f) {
			return true
		}
	}
	return false
}
