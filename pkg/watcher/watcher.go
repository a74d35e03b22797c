// Package watcher monitors a drop directory and runs newly arrived audio
// files through the transcription pipeline automatically.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/voxlabs/voxscribe/pkg/logger"
	"github.com/voxlabs/voxscribe/pkg/transcript"
)

// Processor runs one file through the transcription pipeline.
type Processor interface {
	Process(ctx context.Context, filePath, uploadID, filename string) (*transcript.Record, error)
}

// Config controls the drop-directory watcher.
type Config struct {
	// WatchDir is the directory to monitor.
	WatchDir string

	// Patterns are the file glob patterns to accept (e.g. "*.mp3").
	Patterns []string

	// Recursive also watches subdirectories present at startup.
	Recursive bool

	// StabilityWait is how long a file's size must stay unchanged before
	// it is considered fully written.
	StabilityWait time.Duration

	// ProcessingTimeout bounds a single file's pipeline run.
	ProcessingTimeout time.Duration

	// MoveToDir, when set, receives files after successful processing.
	MoveToDir string

	// ProcessExisting also processes files already in the directory at
	// startup.
	ProcessExisting bool

	// MaxWorkers is the number of files processed concurrently.
	MaxWorkers int
}

// DefaultConfig returns the default watcher configuration.
func DefaultConfig(watchDir string) *Config {
	return &Config{
		WatchDir:          watchDir,
		Patterns:          []string{"*.wav", "*.mp3", "*.mp4", "*.m4a", "*.flac", "*.ogg", "*.webm"},
		StabilityWait:     2 * time.Second,
		ProcessingTimeout: 30 * time.Minute,
		ProcessExisting:   true,
		MaxWorkers:        1,
	}
}

// Stats summarizes watcher activity.
type Stats struct {
	StartTime      time.Time
	ProcessedCount int
	FailedCount    int
	SkippedCount   int
}

// Watcher monitors a directory and feeds matching files to the pipeline.
type Watcher struct {
	cfg     *Config
	proc    Processor
	tracker *tracker
	fsw     *fsnotify.Watcher
	log     *logger.Logger

	sem  chan struct{}
	wg   sync.WaitGroup
	stop chan struct{}

	statsMu sync.Mutex
	stats   Stats
}

// New creates a watcher for cfg.WatchDir.
func New(cfg *Config, proc Processor) (*Watcher, error) {
	if cfg.WatchDir == "" {
		return nil, fmt.Errorf("watch directory is required")
	}
	info, err := os.Stat(cfg.WatchDir)
	if err != nil {
		return nil, fmt.Errorf("watch directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch path %s is not a directory", cfg.WatchDir)
	}
	if cfg.MaxWorkers < 1 {
		cfg.MaxWorkers = 1
	}

	return &Watcher{
		cfg:     cfg,
		proc:    proc,
		tracker: newTracker(),
		log:     logger.WithComponent("watcher"),
		sem:     make(chan struct{}, cfg.MaxWorkers),
		stop:    make(chan struct{}),
	}, nil
}

// Start begins watching. It returns once the watcher is installed; event
// handling runs in background goroutines until Stop or ctx cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create filesystem watcher: %w", err)
	}
	w.fsw = fsw

	if err := w.addWatchDirs(); err != nil {
		fsw.Close()
		return err
	}

	w.statsMu.Lock()
	w.stats.StartTime = time.Now()
	w.statsMu.Unlock()

	if w.cfg.ProcessExisting {
		w.scanExisting(ctx)
	}

	w.wg.Add(1)
	go w.eventLoop(ctx)

	w.log.Info().
		Str("dir", w.cfg.WatchDir).
		Strs("patterns", w.cfg.Patterns).
		Msg("Watching for new audio files")
	return nil
}

// Stop shuts the watcher down and waits for in-flight processing.
func (w *Watcher) Stop() error {
	close(w.stop)
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

// GetStats returns a snapshot of watcher activity.
func (w *Watcher) GetStats() Stats {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return w.stats
}

func (w *Watcher) addWatchDirs() error {
	if err := w.fsw.Add(w.cfg.WatchDir); err != nil {
		return fmt.Errorf("watch %s: %w", w.cfg.WatchDir, err)
	}
	if !w.cfg.Recursive {
		return nil
	}
	return filepath.WalkDir(w.cfg.WatchDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() || path == w.cfg.WatchDir {
			return err
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) scanExisting(ctx context.Context) {
	err := filepath.WalkDir(w.cfg.WatchDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != w.cfg.WatchDir && !w.cfg.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if w.matches(path) {
			w.dispatch(ctx, path)
		}
		return nil
	})
	if err != nil {
		w.log.Warn().Err(err).Msg("Initial directory scan failed")
	}
}

func (w *Watcher) eventLoop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !w.matches(event.Name) {
				continue
			}
			w.dispatch(ctx, event.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("Filesystem watch error")
		}
	}
}

// dispatch hands a file to a worker unless it is already in flight.
func (w *Watcher) dispatch(ctx context.Context, path string) {
	if !w.tracker.TryLock(path) {
		return
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.tracker.Unlock(path)

		select {
		case w.sem <- struct{}{}:
			defer func() { <-w.sem }()
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		}

		w.processFile(ctx, path)
	}()
}

func (w *Watcher) processFile(ctx context.Context, path string) {
	log := w.log.WithField("file", path)

	if !w.waitForStable(ctx, path) {
		log.Debug().Msg("File never stabilized, skipping")
		w.bump(func(s *Stats) { s.SkippedCount++ })
		return
	}

	runCtx := ctx
	if w.cfg.ProcessingTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.cfg.ProcessingTimeout)
		defer cancel()
	}

	uploadID := uuid.NewString()[:8]
	record, err := w.proc.Process(runCtx, path, uploadID, filepath.Base(path))
	if err != nil {
		log.Error().Err(err).Msg("Processing failed")
		w.bump(func(s *Stats) { s.FailedCount++ })
		return
	}

	log.Info().Str("transcript_id", record.ID).Msg("Processed watched file")
	w.bump(func(s *Stats) { s.ProcessedCount++ })

	if w.cfg.MoveToDir != "" {
		w.moveProcessed(path, log)
	}
}

// waitForStable polls the file size until it stops changing. A vanished
// file or a cancelled context reports unstable.
func (w *Watcher) waitForStable(ctx context.Context, path string) bool {
	wait := w.cfg.StabilityWait
	if wait <= 0 {
		wait = time.Second
	}

	var lastSize int64 = -1
	for attempts := 0; attempts < 30; attempts++ {
		info, err := os.Stat(path)
		if err != nil {
			return false
		}
		if info.Size() == lastSize && info.Size() > 0 {
			return true
		}
		lastSize = info.Size()

		select {
		case <-ctx.Done():
			return false
		case <-w.stop:
			return false
		case <-time.After(wait):
		}
	}
	return false
}

func (w *Watcher) moveProcessed(path string, log *logger.Logger) {
	if err := os.MkdirAll(w.cfg.MoveToDir, 0o755); err != nil {
		log.Warn().Err(err).Msg("Cannot create processed directory")
		return
	}
	dest := filepath.Join(w.cfg.MoveToDir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		log.Warn().Err(err).Msg("Cannot move processed file")
		return
	}
	log.Debug().Str("dest", dest).Msg("Moved processed file")
}

func (w *Watcher) matches(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	for _, pattern := range w.cfg.Patterns {
		if ok, err := filepath.Match(strings.ToLower(pattern), name); err == nil && ok {
			return true
		}
	}
	return false
}

func (w *Watcher) bump(fn func(*Stats)) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	fn(&w.stats)
}
