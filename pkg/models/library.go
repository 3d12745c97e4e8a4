package models

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// weightTolerance is the permitted drift when validating that the semantic
// and textual weights of a library sum to 1.0. Weights are stored as 32-bit
// floats, so exact equality is not meaningful.
const weightTolerance = 1e-6

// Library is the unit of retrieval scoping and ranking policy. Documents
// belong to exactly one library, and searches are always scoped to a set
// of libraries.
type Library struct {
	ID   uint      `gorm:"primaryKey" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_libraries_uuid;not null" json:"uuid"`

	Name          string `gorm:"type:varchar(255);not null" json:"name"`
	KnowledgeArea string `gorm:"type:varchar(255)" json:"knowledgeArea,omitempty"`

	// Hybrid ranking weights. Must sum to 1.0.
	PesoSemantico float32 `gorm:"type:real;not null;default:0.5" json:"pesoSemantico"`
	PesoTextual   float32 `gorm:"type:real;not null;default:0.5" json:"pesoTextual"`

	// Per-library model defaults; empty means the process-wide default.
	DefaultEmbeddingModel  string `gorm:"type:varchar(255)" json:"defaultEmbeddingModel,omitempty"`
	DefaultCompletionModel string `gorm:"type:varchar(255)" json:"defaultCompletionModel,omitempty"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name.
func (Library) TableName() string {
	return "libraries"
}

// ValidateWeights checks the weight sum invariant.
func (l *Library) ValidateWeights() error {
	sum := float64(l.PesoSemantico) + float64(l.PesoTextual)
	if math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("pesoSemantico + pesoTextual must equal 1.0, got %g", sum)
	}
	return nil
}

// BeforeSave enforces the weight sum invariant on create and update.
func (l *Library) BeforeSave(tx *gorm.DB) error {
	return l.ValidateWeights()
}

// BeforeCreate assigns a stable external identifier.
func (l *Library) BeforeCreate(tx *gorm.DB) error {
	if l.UUID == uuid.Nil {
		l.UUID = uuid.New()
	}
	if l.Name == "" {
		return fmt.Errorf("library name is required")
	}
	return nil
}

// Get loads a library by primary key.
func (l *Library) Get(db *gorm.DB) error {
	return db.First(l, l.ID).Error
}

// GetLibraryByUUID loads a library by its external identifier.
func GetLibraryByUUID(db *gorm.DB, id uuid.UUID) (*Library, error) {
	var lib Library
	if err := db.Where("uuid = ?", id).First(&lib).Error; err != nil {
		return nil, err
	}
	return &lib, nil
}
