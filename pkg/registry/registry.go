// Package registry persists speaker identities and their voice embeddings
// in a relational store, keyed by a stable speaker id. Every operation runs
// in its own transaction so concurrent pipeline jobs stay consistent.
package registry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/voxlabs/voxscribe/pkg/logger"
	"github.com/voxlabs/voxscribe/pkg/speaker"
	"github.com/voxlabs/voxscribe/pkg/transcript"
)

var (
	// ErrNotFound is returned when a speaker id is absent.
	ErrNotFound = errors.New("speaker not found")

	// ErrSelfMerge is returned when merging a speaker into itself.
	ErrSelfMerge = errors.New("cannot merge a speaker into itself")
)

// Speaker is a registered speaker identity. ID is either a raw diarization
// label (first observation) or a user-assigned name; Name defaults to ID
// until an explicit rename.
type Speaker struct {
	ID              string    `gorm:"primaryKey" json:"id"`
	Name            string    `json:"name"`
	Embedding       []byte    `json:"-"`
	ClipPath        string    `json:"clip_path,omitempty"`
	SampleText      string    `json:"sample_text,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	AppearanceCount int       `json:"appearance_count"`
}

// HasEmbedding reports whether a voice embedding is stored.
func (s *Speaker) HasEmbedding() bool {
	return len(s.Embedding) > 0
}

// Appearance associates a speaker with the segments attributed to them in
// one transcript. Merge and delete operate on these rows.
type Appearance struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	TranscriptID string `gorm:"index"`
	SpeakerID    string `gorm:"index"`
	SegmentCount int
}

// Registry is the speaker identity store.
type Registry struct {
	db            *gorm.DB
	log           *logger.Logger
	searchEnabled bool
}

// Open opens (or creates) the registry database at dbPath and migrates the
// schema. Full-text transcript search needs the FTS5 SQLite extension
// (build tag sqlite_fts5); without it the registry still opens and search
// is disabled.
func Open(dbPath string) (*Registry, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}

	if err := db.AutoMigrate(&Speaker{}, &Appearance{}); err != nil {
		return nil, fmt.Errorf("failed to migrate registry schema: %w", err)
	}

	r := &Registry{
		db:  db,
		log: logger.WithComponent("speaker-registry"),
	}
	if err := createSearchIndex(db); err != nil {
		r.log.Warn().Err(err).Msg("Full-text search unavailable, continuing without it")
	} else {
		r.searchEnabled = true
	}
	return r, nil
}

// Upsert saves a speaker observation. An existing record only has its
// appearance count incremented: the first-seen clip, sample text, and
// embedding win, and later observations never overwrite them. A new record
// starts with an appearance count of 1 and a display name equal to its id.
func (r *Registry) Upsert(id string, clipPath, sampleText string, embedding []float32) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var existing Speaker
		err := tx.Where("id = ?", id).First(&existing).Error
		switch {
		case err == nil:
			return tx.Model(&Speaker{}).
				Where("id = ?", id).
				UpdateColumn("appearance_count", gorm.Expr("appearance_count + 1")).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			rec := Speaker{
				ID:              id,
				Name:            id,
				Embedding:       encodeEmbedding(embedding),
				ClipPath:        clipPath,
				SampleText:      sampleText,
				CreatedAt:       time.Now(),
				AppearanceCount: 1,
			}
			return tx.Create(&rec).Error
		default:
			return err
		}
	})
}

// Get retrieves a speaker by id.
func (r *Registry) Get(id string) (*Speaker, error) {
	var rec Speaker
	err := r.db.Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns all speakers ordered by appearance count, most seen first.
func (r *Registry) List() ([]Speaker, error) {
	var speakers []Speaker
	err := r.db.Order("appearance_count DESC").Find(&speakers).Error
	return speakers, err
}

// ListWithEmbeddings returns the match candidates: speakers with a stored
// embedding whose display name is not an auto-generated diarization label.
// New speakers are created under their raw label with Name defaulting to it,
// so a speaker becomes eligible exactly when a human renames them; filtering
// on the name prevents matching one anonymous label against another.
func (r *Registry) ListWithEmbeddings() ([]speaker.Known, error) {
	var speakers []Speaker
	err := r.db.
		Where("embedding IS NOT NULL AND length(embedding) > 0").
		Order("appearance_count DESC").
		Find(&speakers).Error
	if err != nil {
		return nil, err
	}

	known := make([]speaker.Known, 0, len(speakers))
	for _, s := range speakers {
		if transcript.IsDiarizationLabel(s.Name) {
			continue
		}
		known = append(known, speaker.Known{
			ID:        s.ID,
			Name:      s.Name,
			Embedding: decodeEmbedding(s.Embedding),
		})
	}
	return known, nil
}

// Rename updates a speaker's display name. When the id is absent a new
// record is created directly under the new name.
func (r *Registry) Rename(id, newName string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var existing Speaker
		err := tx.Where("id = ?", id).First(&existing).Error
		switch {
		case err == nil:
			return tx.Model(&Speaker{}).Where("id = ?", id).Update("name", newName).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			rec := Speaker{
				ID:              id,
				Name:            newName,
				CreatedAt:       time.Now(),
				AppearanceCount: 1,
			}
			return tx.Create(&rec).Error
		default:
			return err
		}
	})
}

// Merge folds fromID into toID: all of fromID's appearances are reassigned,
// its appearance count is absorbed, and the record is removed. The whole
// operation is transactional; on any failure the prior state is kept.
func (r *Registry) Merge(fromID, toID string) error {
	if fromID == toID {
		return ErrSelfMerge
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		var from Speaker
		if err := tx.Where("id = ?", fromID).First(&from).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrNotFound, fromID)
			}
			return err
		}
		var to Speaker
		if err := tx.Where("id = ?", toID).First(&to).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrNotFound, toID)
			}
			return err
		}

		if err := tx.Model(&Appearance{}).
			Where("speaker_id = ?", fromID).
			Update("speaker_id", toID).Error; err != nil {
			return fmt.Errorf("failed to reassign appearances: %w", err)
		}

		if err := tx.Model(&Speaker{}).
			Where("id = ?", toID).
			UpdateColumn("appearance_count", gorm.Expr("appearance_count + ?", from.AppearanceCount)).Error; err != nil {
			return fmt.Errorf("failed to absorb appearance count: %w", err)
		}

		if err := tx.Delete(&Speaker{}, "id = ?", fromID).Error; err != nil {
			return fmt.Errorf("failed to remove merged speaker: %w", err)
		}

		r.log.Info().Str("from", fromID).Str("to", toID).Msg("Merged speakers")
		return nil
	})
}

// Delete removes a speaker and its segment associations.
func (r *Registry) Delete(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&Appearance{}, "speaker_id = ?", id).Error; err != nil {
			return err
		}
		result := tx.Delete(&Speaker{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil
	})
}

// RecordAppearance associates a speaker with a transcript.
func (r *Registry) RecordAppearance(transcriptID, speakerID string, segmentCount int) error {
	return r.db.Create(&Appearance{
		TranscriptID: transcriptID,
		SpeakerID:    speakerID,
		SegmentCount: segmentCount,
	}).Error
}

// Appearances returns a speaker's transcript associations.
func (r *Registry) Appearances(speakerID string) ([]Appearance, error) {
	var rows []Appearance
	err := r.db.Where("speaker_id = ?", speakerID).Find(&rows).Error
	return rows, err
}

// Close closes the underlying database connection.
func (r *Registry) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// encodeEmbedding serializes a vector as little-endian float32 bytes.
// A nil or empty vector encodes to nil.
func encodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeEmbedding deserializes little-endian float32 bytes. Trailing bytes
// that do not form a whole component are dropped.
func decodeEmbedding(b []byte) []float32 {
	n := len(b) / 4
	if n == 0 {
		return nil
	}
	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
