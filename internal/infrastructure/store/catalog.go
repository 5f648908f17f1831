package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/catalog"
)

// FacetInstanceID carries the dataset slug on every catalog record.
const FacetInstanceID = "instance_id"

// Dataset is one ingested dataset: a set of files sharing facets.
type Dataset struct {
	Slug       string
	SourceType catalog.SourceType
	Facets     map[string]string
	Files      []DatasetFile
}

// DatasetFile is one file of a dataset with its optional time bounds.
type DatasetFile struct {
	Path      string
	StartTime *time.Time
	EndTime   *time.Time
}

// IngestDataset inserts or replaces a dataset and its files. Replacing a dataset
// changes the hash of every group that reads it.
func (s *Store) IngestDataset(ctx context.Context, d Dataset) error {
	if d.Slug == "" {
		return fmt.Errorf("dataset slug is required")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m datasetModel
		err := tx.Where("slug = ?", d.Slug).Limit(1).Find(&m).Error
		if err != nil {
			return fmt.Errorf("load dataset %s: %w", d.Slug, err)
		}
		m.Slug = d.Slug
		m.SourceType = string(d.SourceType)
		m.Facets = d.Facets
		if err := tx.Save(&m).Error; err != nil {
			return fmt.Errorf("save dataset %s: %w", d.Slug, err)
		}
		if err := tx.Where("dataset_id = ?", m.ID).Delete(&datasetFileModel{}).Error; err != nil {
			return fmt.Errorf("replace files of %s: %w", d.Slug, err)
		}
		if len(d.Files) == 0 {
			return nil
		}
		files := make([]datasetFileModel, len(d.Files))
		for i, f := range d.Files {
			files[i] = datasetFileModel{DatasetID: m.ID, Path: f.Path, StartTime: f.StartTime, EndTime: f.EndTime}
		}
		if err := tx.Create(&files).Error; err != nil {
			return fmt.Errorf("save files of %s: %w", d.Slug, err)
		}
		return nil
	})
}

// Catalog flattens every file of the given source type into a catalog record
// carrying its dataset's facets plus instance_id. It reads fresh state on every
// call.
func (s *Store) Catalog(ctx context.Context, sourceType catalog.SourceType) (*catalog.DataCatalog, error) {
	var datasets []datasetModel
	err := s.db.WithContext(ctx).
		Preload("Files", func(db *gorm.DB) *gorm.DB { return db.Order("path") }).
		Where("source_type = ?", string(sourceType)).
		Order("slug").
		Find(&datasets).Error
	if err != nil {
		return nil, fmt.Errorf("load %s datasets: %w", sourceType, err)
	}

	var records []catalog.Record
	for _, d := range datasets {
		facets := make(map[string]string, len(d.Facets)+1)
		for k, v := range d.Facets {
			facets[k] = v
		}
		facets[FacetInstanceID] = d.Slug
		for _, f := range d.Files {
			records = append(records, catalog.NewRecord(f.Path, facets, f.StartTime, f.EndTime))
		}
	}
	s.logger.Debug(ctx, "loaded data catalog", "source_type", string(sourceType), "datasets", len(datasets), "records", len(records))
	return catalog.New(sourceType, records, FacetInstanceID), nil
}
