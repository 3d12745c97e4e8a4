package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Checksum is a CRC64 content checksum. Postgres bigint is signed and the
// pgx driver rejects uint64 values above MaxInt64, so the value is bit-cast
// through int64 on the wire; the Go representation stays uint64.
type Checksum uint64

// GormDataType maps the column to bigint.
func (Checksum) GormDataType() string {
	return "bigint"
}

// Value implements driver.Valuer.
func (c Checksum) Value() (driver.Value, error) {
	return int64(c), nil
}

// Scan implements sql.Scanner.
func (c *Checksum) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*c = 0
	case int64:
		*c = Checksum(v)
	case uint64:
		*c = Checksum(v)
	default:
		return fmt.Errorf("cannot scan %T into Checksum", value)
	}
	return nil
}

// ContentType classifies a document and selects its chapter splitter.
type ContentType string

const (
	ContentTypeLei                ContentType = "LEI"
	ContentTypeDecreto            ContentType = "DECRETO"
	ContentTypeInstrucaoNormativa ContentType = "INSTRUCAO_NORMATIVA"
	ContentTypeWiki               ContentType = "WIKI"
	ContentTypeLivro              ContentType = "LIVRO"
	ContentTypeArtigo             ContentType = "ARTIGO"
	ContentTypeManual             ContentType = "MANUAL"
	ContentTypeOutros             ContentType = "OUTROS"
)

// IsNormative reports whether the content type carries legal-structural
// markers (articles, sections) that the normative splitter understands.
func (c ContentType) IsNormative() bool {
	switch c {
	case ContentTypeLei, ContentTypeDecreto, ContentTypeInstrucaoNormativa:
		return true
	}
	return false
}

// Documento is a complete source document in normalized Markdown form.
// Chapters and DocEmbeddings derived from it are removed via CASCADE when
// the row is deleted; reprocessing with overwrite preserves the row itself.
type Documento struct {
	ID   uint      `gorm:"primaryKey" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_documentos_uuid;not null" json:"uuid"`

	LibraryID uint    `gorm:"not null;index:idx_documentos_library;uniqueIndex:idx_documentos_library_checksum" json:"libraryId"`
	Library   Library `gorm:"foreignKey:LibraryID" json:"-"`

	Title       string      `gorm:"type:varchar(500);not null" json:"title"`
	Conteudo    string      `gorm:"type:text;not null" json:"-"`
	ContentType ContentType `gorm:"type:varchar(50);not null;default:'OUTROS'" json:"contentType"`

	DataPublicacao *time.Time `json:"dataPublicacao,omitempty"`
	FlagVigente    bool       `gorm:"not null;default:true" json:"flagVigente"`

	// TokensTotal is written once ingestion completes successfully.
	TokensTotal int `gorm:"not null;default:0" json:"tokensTotal"`

	// Checksum is the CRC64 (ECMA) of the final Markdown representation.
	// Unique per library: duplicate uploads to the same library fail.
	Checksum Checksum `gorm:"not null;uniqueIndex:idx_documentos_library_checksum" json:"checksum"`

	Metadata JSON `gorm:"type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name.
func (Documento) TableName() string {
	return "documentos"
}

// BeforeCreate validates required fields and assigns the external UUID.
func (d *Documento) BeforeCreate(tx *gorm.DB) error {
	if d.UUID == uuid.Nil {
		d.UUID = uuid.New()
	}
	if d.LibraryID == 0 {
		return fmt.Errorf("library_id is required")
	}
	if d.Conteudo == "" {
		return fmt.Errorf("conteudo is required")
	}
	if d.ContentType == "" {
		d.ContentType = ContentTypeOutros
	}
	return nil
}

// Get loads a documento by primary key.
func (d *Documento) Get(db *gorm.DB) error {
	return db.First(d, d.ID).Error
}

// FindDocumentoByChecksum returns the documento in a library with the given
// content checksum, or gorm.ErrRecordNotFound.
func FindDocumentoByChecksum(db *gorm.DB, libraryID uint, checksum Checksum) (*Documento, error) {
	var doc Documento
	err := db.Where("library_id = ? AND checksum = ?", libraryID, checksum).
		First(&doc).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// CountChapters returns the number of chapters derived from this documento.
func (d *Documento) CountChapters(db *gorm.DB) (int64, error) {
	var n int64
	err := db.Model(&Chapter{}).Where("documento_id = ?", d.ID).Count(&n).Error
	return n, err
}
