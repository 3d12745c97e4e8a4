package models

import (
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// TipoEmbedding distinguishes the kinds of retrieval units stored for a
// documento.
type TipoEmbedding string

const (
	// TipoTrecho is a text chunk of a chapter.
	TipoTrecho TipoEmbedding = "TRECHO"
	// TipoResumo is an LLM-generated summary of a chapter (or documento).
	TipoResumo TipoEmbedding = "RESUMO"
	// TipoCapitulo is a whole-chapter embedding.
	TipoCapitulo TipoEmbedding = "CAPITULO"
	// TipoPerguntasRespostas is a generated question/answer pair.
	TipoPerguntasRespostas TipoEmbedding = "PERGUNTAS_RESPOSTAS"
)

// ResumoOrderChapter is the ordinal assigned to summary embeddings; trecho
// embeddings are numbered 0..N-1 within their chapter.
const ResumoOrderChapter = -1

// DocEmbedding is the indexed retrieval unit: a text fragment plus its
// vector. The vector stays NULL between the split phase and the batched
// embedding phase, which makes interrupted ingestion resumable.
//
// The text_search tsvector column is generated by the database (see
// pkg/database bootstrap DDL) and is deliberately absent from this struct.
type DocEmbedding struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// LibraryID is denormalized for query-path index pruning.
	LibraryID   uint `gorm:"not null;index:idx_doc_embeddings_library" json:"libraryId"`
	DocumentoID uint `gorm:"not null;index:idx_doc_embeddings_documento" json:"documentoId"`
	ChapterID   *uint `gorm:"index:idx_doc_embeddings_chapter" json:"chapterId,omitempty"`

	Documento Documento `gorm:"foreignKey:DocumentoID;constraint:OnDelete:CASCADE" json:"-"`
	Chapter   *Chapter  `gorm:"foreignKey:ChapterID;constraint:OnDelete:CASCADE" json:"-"`

	TipoEmbedding TipoEmbedding `gorm:"type:varchar(30);not null" json:"tipoEmbedding"`
	Texto         string        `gorm:"type:text;not null" json:"texto"`

	// EmbeddingVector is nullable until phase 2.3 computes it.
	EmbeddingVector *pgvector.Vector `gorm:"type:vector(768)" json:"-"`

	// OrderChapter orders trechos within a chapter; ResumoOrderChapter (-1)
	// marks summaries.
	OrderChapter int `gorm:"not null;default:0" json:"orderChapter"`

	Metadata JSON `gorm:"type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name.
func (DocEmbedding) TableName() string {
	return "doc_embeddings"
}

// Validate enforces the tipo/order/chapter consistency invariants.
func (e *DocEmbedding) Validate() error {
	switch e.TipoEmbedding {
	case TipoTrecho, TipoCapitulo:
		if e.ChapterID == nil {
			return fmt.Errorf("%s embedding requires chapter_id", e.TipoEmbedding)
		}
		if e.OrderChapter < 0 {
			return fmt.Errorf("%s embedding requires non-negative order_chapter", e.TipoEmbedding)
		}
	case TipoResumo:
		if e.OrderChapter != ResumoOrderChapter {
			return fmt.Errorf("RESUMO embedding requires order_chapter = %d", ResumoOrderChapter)
		}
	case TipoPerguntasRespostas:
		// No ordering constraints.
	default:
		return fmt.Errorf("unknown tipo_embedding: %q", e.TipoEmbedding)
	}
	if e.Texto == "" {
		return fmt.Errorf("texto is required")
	}
	return nil
}

// BeforeCreate validates the row before insertion.
func (e *DocEmbedding) BeforeCreate(tx *gorm.DB) error {
	if e.LibraryID == 0 {
		return fmt.Errorf("library_id is required")
	}
	if e.DocumentoID == 0 {
		return fmt.Errorf("documento_id is required")
	}
	return e.Validate()
}

// FindPendingEmbeddings returns the embeddings of a documento whose vector
// has not been computed yet, in insertion order.
func FindPendingEmbeddings(db *gorm.DB, documentoID uint) ([]DocEmbedding, error) {
	var embeddings []DocEmbedding
	err := db.Where("documento_id = ? AND embedding_vector IS NULL", documentoID).
		Order("id ASC").
		Find(&embeddings).Error
	return embeddings, err
}

// CountEmbeddingsByDocumento returns total and pending (NULL vector) counts
// for a documento in one query each.
func CountEmbeddingsByDocumento(db *gorm.DB, documentoID uint) (total, pending int64, err error) {
	if err = db.Model(&DocEmbedding{}).
		Where("documento_id = ?", documentoID).
		Count(&total).Error; err != nil {
		return 0, 0, err
	}
	err = db.Model(&DocEmbedding{}).
		Where("documento_id = ? AND embedding_vector IS NULL", documentoID).
		Count(&pending).Error
	return total, pending, err
}

// UpdateEmbeddingVector writes a computed vector for one embedding row.
// Updates are deliberately per-row so one failure cannot poison a batch.
func UpdateEmbeddingVector(db *gorm.DB, id uint, vec pgvector.Vector) error {
	return db.Model(&DocEmbedding{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"embedding_vector": vec,
			"updated_at":       time.Now(),
		}).Error
}
