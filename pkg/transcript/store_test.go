package transcript

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "transcripts.db"))
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testRecord(id string, processedAt time.Time) *Record {
	return &Record{
		ID:          id,
		Filename:    "meeting.mp3",
		Duration:    42.5,
		Language:    "en",
		Segments:    []*Segment{{Start: 0, End: 3, Text: "hello", Speaker: "SPEAKER_00"}},
		Speakers:    &SpeakerInfo{Enabled: true, Labels: []string{"SPEAKER_00"}, Count: 1},
		Text:        "\n[SPEAKER_00]: hello",
		ProcessedAt: processedAt,
	}
}

func TestStoreSaveAndGet(t *testing.T) {
	store := testStore(t)
	rec := testRecord("abc_20260101_120000", time.Now())

	if err := store.Save(rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Get(rec.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil {
		t.Fatal("Get() returned nil for a saved record")
	}
	if got.ID != rec.ID || got.Filename != rec.Filename || got.Language != rec.Language {
		t.Errorf("Get() = %+v, want %+v", got, rec)
	}
	if len(got.Segments) != 1 || got.Segments[0].Speaker != "SPEAKER_00" {
		t.Errorf("segments not preserved: %+v", got.Segments)
	}
	if !got.Speakers.Enabled {
		t.Error("speaker info not preserved")
	}
}

func TestStoreGetMissing(t *testing.T) {
	store := testStore(t)
	got, err := store.Get("absent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != nil {
		t.Errorf("Get() = %+v, want nil for a missing id", got)
	}
}

func TestStoreDuplicateID(t *testing.T) {
	store := testStore(t)
	rec := testRecord("dup_20260101_120000", time.Now())

	if err := store.Save(rec); err != nil {
		t.Fatalf("first Save() error = %v", err)
	}
	err := store.Save(rec)
	if !errors.Is(err, ErrDuplicateID) {
		t.Errorf("second Save() error = %v, want ErrDuplicateID", err)
	}
}

func TestStoreListPagination(t *testing.T) {
	store := testStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ids := []string{"a_1", "b_2", "c_3", "d_4", "e_5"}
	for i, id := range ids {
		if err := store.Save(testRecord(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("Save(%s) error = %v", id, err)
		}
	}

	records, total, err := store.List(1, 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(records) != 2 {
		t.Fatalf("page size = %d, want 2", len(records))
	}
	// Newest first.
	if records[0].ID != "e_5" || records[1].ID != "d_4" {
		t.Errorf("page 1 = %s, %s; want e_5, d_4", records[0].ID, records[1].ID)
	}

	records, _, err = store.List(3, 2)
	if err != nil {
		t.Fatalf("List() page 3 error = %v", err)
	}
	if len(records) != 1 || records[0].ID != "a_1" {
		t.Errorf("last page = %+v, want only a_1", records)
	}

	records, _, err = store.List(4, 2)
	if err != nil {
		t.Fatalf("List() past end error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("past-end page returned %d records, want 0", len(records))
	}
}
