package registry

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrSearchDisabled is returned when the SQLite build lacks FTS5 support.
var ErrSearchDisabled = errors.New("full-text search is not available")

// SearchHit is one full-text search result.
type SearchHit struct {
	TranscriptID string `json:"transcript_id"`
	Filename     string `json:"filename"`
	Snippet      string `json:"snippet"`
}

// createSearchIndex creates the FTS5 virtual table over transcript text.
func createSearchIndex(db *gorm.DB) error {
	err := db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS transcripts_fts
		USING fts5(transcript_id, filename, full_text, tokenize='porter')`).Error
	if err != nil {
		return fmt.Errorf("failed to create full-text index: %w", err)
	}
	return nil
}

// SearchEnabled reports whether the full-text index is available.
func (r *Registry) SearchEnabled() bool {
	return r.searchEnabled
}

// IndexTranscript adds a transcript's rendered text to the full-text index.
// Without FTS5 support the call is a no-op.
func (r *Registry) IndexTranscript(transcriptID, filename, fullText string) error {
	if !r.searchEnabled {
		return nil
	}
	err := r.db.Exec(
		`INSERT INTO transcripts_fts (transcript_id, filename, full_text) VALUES (?, ?, ?)`,
		transcriptID, filename, fullText,
	).Error
	if err != nil {
		return fmt.Errorf("failed to index transcript %s: %w", transcriptID, err)
	}
	return nil
}

// SearchTranscripts runs a full-text query over indexed transcript text and
// returns matching transcripts with a highlighted snippet.
func (r *Registry) SearchTranscripts(query string, limit int) ([]SearchHit, error) {
	if !r.searchEnabled {
		return nil, ErrSearchDisabled
	}
	if limit <= 0 {
		limit = 50
	}

	var hits []SearchHit
	err := r.db.Raw(
		`SELECT transcript_id, filename,
			snippet(transcripts_fts, 2, '[', ']', '…', 16) AS snippet
		 FROM transcripts_fts
		 WHERE transcripts_fts MATCH ?
		 ORDER BY rank
		 LIMIT ?`,
		query, limit,
	).Scan(&hits).Error
	if err != nil {
		return nil, fmt.Errorf("full-text search failed: %w", err)
	}
	return hits, nil
}
