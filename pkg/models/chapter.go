package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Chapter is a coherent section of a Documento, targeting roughly 8k tokens.
// Ordinals are dense and unique within a documento. Deleting the chapters of
// a documento removes their DocEmbeddings via CASCADE.
type Chapter struct {
	ID uint `gorm:"primaryKey" json:"id"`

	DocumentoID uint      `gorm:"not null;index:idx_chapters_documento;uniqueIndex:idx_chapters_documento_ordem" json:"documentoId"`
	Documento   Documento `gorm:"foreignKey:DocumentoID;constraint:OnDelete:CASCADE" json:"-"`

	Title    string `gorm:"type:varchar(500)" json:"title"`
	Conteudo string `gorm:"type:text;not null" json:"-"`

	// OrdemDoc is the position of this chapter within the documento, 0-based.
	OrdemDoc    int `gorm:"not null;uniqueIndex:idx_chapters_documento_ordem" json:"ordemDoc"`
	TokensTotal int `gorm:"not null;default:0" json:"tokensTotal"`

	Metadata JSON `gorm:"type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name.
func (Chapter) TableName() string {
	return "chapters"
}

// BeforeCreate validates required fields.
func (c *Chapter) BeforeCreate(tx *gorm.DB) error {
	if c.DocumentoID == 0 {
		return fmt.Errorf("documento_id is required")
	}
	if c.Conteudo == "" {
		return fmt.Errorf("conteudo is required")
	}
	if c.OrdemDoc < 0 {
		return fmt.Errorf("ordem_doc must be non-negative")
	}
	return nil
}

// FindChaptersByDocumento returns the chapters of a documento ordered by
// their position.
func FindChaptersByDocumento(db *gorm.DB, documentoID uint) ([]Chapter, error) {
	var chapters []Chapter
	err := db.Where("documento_id = ?", documentoID).
		Order("ordem_doc ASC").
		Find(&chapters).Error
	return chapters, err
}

// DeleteChaptersByDocumento removes all chapters for a documento in one
// statement; DocEmbedding rows go with them via CASCADE. Returns the number
// of chapter rows removed.
func DeleteChaptersByDocumento(db *gorm.DB, documentoID uint) (int64, error) {
	result := db.Unscoped().Where("documento_id = ?", documentoID).Delete(&Chapter{})
	return result.RowsAffected, result.Error
}
