package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/voxlabs/voxscribe/pkg/transcript"
)

type recordingProcessor struct {
	mu    sync.Mutex
	files []string
}

func (p *recordingProcessor) Process(_ context.Context, filePath, uploadID, _ string) (*transcript.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.files = append(p.files, filePath)
	return &transcript.Record{ID: uploadID + "_20260101_000000"}, nil
}

func (p *recordingProcessor) processed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.files...)
}

func TestMatches(t *testing.T) {
	w := &Watcher{cfg: DefaultConfig("/tmp")}

	tests := []struct {
		path string
		want bool
	}{
		{"/drop/meeting.mp3", true},
		{"/drop/MEETING.MP3", true},
		{"/drop/talk.wav", true},
		{"/drop/video.mp4", true},
		{"/drop/notes.txt", false},
		{"/drop/archive.mp3.part", false},
	}
	for _, tt := range tests {
		if got := w.matches(tt.path); got != tt.want {
			t.Errorf("matches(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestTracker(t *testing.T) {
	tr := newTracker()

	if !tr.TryLock("/a.mp3") {
		t.Fatal("first TryLock failed")
	}
	if tr.TryLock("/a.mp3") {
		t.Error("second TryLock succeeded while in flight")
	}
	if !tr.TryLock("/b.mp3") {
		t.Error("TryLock for an unrelated file failed")
	}

	tr.Unlock("/a.mp3")
	if !tr.TryLock("/a.mp3") {
		t.Error("TryLock after Unlock failed")
	}
}

func TestTrackerCleanupStale(t *testing.T) {
	tr := newTracker()
	tr.TryLock("/stale.mp3")
	tr.inFlight["/stale.mp3"] = time.Now().Add(-time.Hour)
	tr.TryLock("/fresh.mp3")

	if cleaned := tr.CleanupStale(30 * time.Minute); cleaned != 1 {
		t.Errorf("CleanupStale() = %d, want 1", cleaned)
	}
	if !tr.TryLock("/stale.mp3") {
		t.Error("stale claim not released")
	}
	if tr.TryLock("/fresh.mp3") {
		t.Error("fresh claim released")
	}
}

func TestWatcherProcessesExistingFiles(t *testing.T) {
	dir := t.TempDir()
	audioPath := filepath.Join(dir, "existing.mp3")
	if err := os.WriteFile(audioPath, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	proc := &recordingProcessor{}
	cfg := DefaultConfig(dir)
	cfg.StabilityWait = 10 * time.Millisecond

	w, err := New(cfg, proc)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	deadline := time.After(5 * time.Second)
	for len(proc.processed()) == 0 {
		select {
		case <-deadline:
			t.Fatal("existing file never processed")
		case <-time.After(20 * time.Millisecond):
		}
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	got := proc.processed()
	if len(got) != 1 || got[0] != audioPath {
		t.Errorf("processed = %v, want only %s", got, audioPath)
	}
	if stats := w.GetStats(); stats.ProcessedCount != 1 {
		t.Errorf("processed count = %d, want 1", stats.ProcessedCount)
	}
}

func TestWatcherMovesProcessedFiles(t *testing.T) {
	dir := t.TempDir()
	doneDir := filepath.Join(dir, "done")
	watchDir := filepath.Join(dir, "in")
	if err := os.MkdirAll(watchDir, 0o755); err != nil {
		t.Fatal(err)
	}
	audioPath := filepath.Join(watchDir, "clip.wav")
	if err := os.WriteFile(audioPath, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig(watchDir)
	cfg.StabilityWait = 10 * time.Millisecond
	cfg.MoveToDir = doneDir

	w, err := New(cfg, &recordingProcessor{})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}

	moved := filepath.Join(doneDir, "clip.wav")
	deadline := time.After(5 * time.Second)
	for {
		if _, err := os.Stat(moved); err == nil {
			break
		}
		select {
		case <-deadline:
			t.Fatal("processed file never moved")
		case <-time.After(20 * time.Millisecond):
		}
	}

	if err := w.Stop(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(audioPath); !os.IsNotExist(err) {
		t.Error("source file still in the watch directory")
	}
}

func TestNewRejectsMissingDirectory(t *testing.T) {
	_, err := New(DefaultConfig(filepath.Join(t.TempDir(), "absent")), &recordingProcessor{})
	if err == nil {
		t.Fatal("New() error = nil, want missing-directory failure")
	}
}
