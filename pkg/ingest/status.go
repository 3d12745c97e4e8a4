package ingest

import (
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/acervo-ai/acervo/pkg/models"
)

// State of a document in the ingestion lifecycle. State is derived from
// the database, not stored; the tracker only adds in-flight progress.
type State string

const (
	// StateUploaded means the documento row exists with no chapters.
	StateUploaded State = "UPLOADED"
	// StateProcessing means chapters exist and vectors are being computed.
	StateProcessing State = "PROCESSING"
	// StateProcessed means every embedding has its vector.
	StateProcessed State = "PROCESSED"
	// StatePartial means processing finished with some vectors missing.
	StatePartial State = "PARTIAL"
	// StateFailed means splitting failed and nothing was derived.
	StateFailed State = "FAILED"
)

// DeriveState computes a document's state from its persisted rows. The
// result cannot distinguish PROCESSING from PARTIAL; that distinction
// needs the tracker's completion timestamp.
func DeriveState(db *gorm.DB, documentoID uint) (State, error) {
	doc := models.Documento{ID: documentoID}
	chapters, err := doc.CountChapters(db)
	if err != nil {
		return "", err
	}
	if chapters == 0 {
		return StateUploaded, nil
	}

	_, pending, err := models.CountEmbeddingsByDocumento(db, documentoID)
	if err != nil {
		return "", err
	}
	if pending > 0 {
		return StateProcessing, nil
	}
	return StateProcessed, nil
}

// ProgressRecord is the tracker's view of one ingestion run.
type ProgressRecord struct {
	DocumentID          uint       `json:"documentId"`
	State               State      `json:"state"`
	ChaptersCount       int        `json:"chaptersCount"`
	EmbeddingsTotal     int        `json:"embeddingsTotal"`
	EmbeddingsProcessed int        `json:"embeddingsProcessed"`
	EmbeddingsFailed    int        `json:"embeddingsFailed"`
	StartedAt           time.Time  `json:"startedAt"`
	CompletedAt         *time.Time `json:"completedAt,omitempty"`
	ErrorMessage        string     `json:"errorMessage,omitempty"`
}

// DefaultStatusTTL is how long completed records stay visible to pollers.
const DefaultStatusTTL = 30 * time.Minute

// StatusTracker is an in-memory concurrent map of ingestion progress.
// Writers are orchestrator workers; readers are status-polling handlers.
// Completed entries expire after the TTL.
type StatusTracker struct {
	mu      sync.RWMutex
	records map[uint]*ProgressRecord
	ttl     time.Duration
}

// NewStatusTracker creates a tracker. A non-positive ttl uses the default.
func NewStatusTracker(ttl time.Duration) *StatusTracker {
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	return &StatusTracker{
		records: make(map[uint]*ProgressRecord),
		ttl:     ttl,
	}
}

// Start registers a fresh run for a document, replacing any prior record.
func (t *StatusTracker) Start(documentID uint) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sweepLocked()
	t.records[documentID] = &ProgressRecord{
		DocumentID: documentID,
		State:      StateProcessing,
		StartedAt:  time.Now(),
	}
}

// Update applies fn to the document's record under the lock. A missing
// record is a no-op.
func (t *StatusTracker) Update(documentID uint, fn func(*ProgressRecord)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rec, ok := t.records[documentID]; ok {
		fn(rec)
	}
}

// Complete marks the run finished with its final state.
func (t *StatusTracker) Complete(documentID uint, state State, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[documentID]
	if !ok {
		return
	}
	now := time.Now()
	rec.State = state
	rec.CompletedAt = &now
	rec.ErrorMessage = errMsg
}

// Get returns a copy of the document's record.
func (t *StatusTracker) Get(documentID uint) (ProgressRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, ok := t.records[documentID]
	if !ok {
		return ProgressRecord{}, false
	}
	if rec.CompletedAt != nil && time.Since(*rec.CompletedAt) > t.ttl {
		return ProgressRecord{}, false
	}
	return *rec, true
}

// sweepLocked drops completed records past the TTL. Callers hold the lock.
func (t *StatusTracker) sweepLocked() {
	for id, rec := range t.records {
		if rec.CompletedAt != nil && time.Since(*rec.CompletedAt) > t.ttl {
			delete(t.records, id)
		}
	}
}
