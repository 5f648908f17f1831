package store

import (
	"time"

	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/execution"
)

type datasetModel struct {
	ID         uint               `gorm:"primaryKey"`
	Slug       string             `gorm:"not null;uniqueIndex"`
	SourceType string             `gorm:"not null;index;size:32"`
	Facets     map[string]string  `gorm:"serializer:json"`
	Files      []datasetFileModel `gorm:"foreignKey:DatasetID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (datasetModel) TableName() string { return "datasets" }

type datasetFileModel struct {
	ID        uint   `gorm:"primaryKey"`
	DatasetID uint   `gorm:"not null;index"`
	Path      string `gorm:"not null"`
	StartTime *time.Time
	EndTime   *time.Time
}

func (datasetFileModel) TableName() string { return "dataset_files" }

// Dirty has no column default: gorm would substitute the default for an explicit false.
type groupModel struct {
	ID           uint                         `gorm:"primaryKey"`
	DiagnosticID string                       `gorm:"not null;uniqueIndex:idx_execution_groups_diagnostic_key"`
	Key          string                       `gorm:"column:key;not null;uniqueIndex:idx_execution_groups_diagnostic_key"`
	Dirty        bool                         `gorm:"not null"`
	Selectors    map[string]map[string]string `gorm:"serializer:json"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (groupModel) TableName() string { return "execution_groups" }

func (m groupModel) toDomain() *execution.Group {
	return &execution.Group{
		ID:           m.ID,
		DiagnosticID: m.DiagnosticID,
		Key:          m.Key,
		Dirty:        m.Dirty,
		Selectors:    m.Selectors,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

type executionModel struct {
	ID             uint   `gorm:"primaryKey"`
	GroupID        uint   `gorm:"not null;index"`
	DatasetHash    string `gorm:"not null;index"`
	OutputFragment string `gorm:"not null"`
	Successful     *bool
	Path           *string
	CreatedAt      time.Time `gorm:"index"`
}

func (executionModel) TableName() string { return "executions" }

func (m executionModel) toDomain() *execution.Execution {
	return &execution.Execution{
		ID:             m.ID,
		GroupID:        m.GroupID,
		DatasetHash:    m.DatasetHash,
		OutputFragment: m.OutputFragment,
		Successful:     m.Successful,
		Path:           m.Path,
		CreatedAt:      m.CreatedAt,
	}
}

type executionDatasetModel struct {
	ExecutionID uint `gorm:"primaryKey"`
	DatasetID   uint `gorm:"primaryKey;index"`
}

func (executionDatasetModel) TableName() string { return "execution_datasets" }

type executionOutputModel struct {
	ID          uint   `gorm:"primaryKey"`
	ExecutionID uint   `gorm:"not null;uniqueIndex:idx_execution_output"`
	Type        string `gorm:"not null;size:16;uniqueIndex:idx_execution_output"`
	ShortName   string `gorm:"not null;uniqueIndex:idx_execution_output"`
	Filename    string `gorm:"not null"`
	LongName    string
	Description string
}

func (executionOutputModel) TableName() string { return "execution_outputs" }

type metricValueModel struct {
	ID          uint              `gorm:"primaryKey"`
	ExecutionID uint              `gorm:"not null;index"`
	Kind        string            `gorm:"not null;size:16"`
	Dimensions  map[string]string `gorm:"serializer:json"`
	Value       *float64
	Values      []float64 `gorm:"serializer:json"`
	Index       []string  `gorm:"column:value_index;serializer:json"`
	IndexName   string
	Attributes  map[string]string `gorm:"serializer:json"`
}

func (metricValueModel) TableName() string { return "metric_values" }

func newMetricValueModel(executionID uint, v execution.MetricValue) metricValueModel {
	m := metricValueModel{
		ExecutionID: executionID,
		Kind:        string(v.Kind),
		Dimensions:  v.Dimensions,
		IndexName:   v.IndexName,
		Attributes:  v.Attributes,
	}
	if v.Kind == execution.ValueSeries {
		m.Values = v.Values
		m.Index = v.Index
	} else {
		value := v.Value
		m.Value = &value
	}
	return m
}

func (m metricValueModel) toDomain() execution.MetricValue {
	v := execution.MetricValue{
		Kind:       execution.ValueKind(m.Kind),
		Dimensions: m.Dimensions,
		Values:     m.Values,
		Index:      m.Index,
		IndexName:  m.IndexName,
		Attributes: m.Attributes,
	}
	if m.Value != nil {
		v.Value = *m.Value
	}
	return v
}

var allModels = []interface{}{
	&datasetModel{},
	&datasetFileModel{},
	&groupModel{},
	&executionModel{},
	&executionDatasetModel{},
	&executionOutputModel{},
	&metricValueModel{},
}
