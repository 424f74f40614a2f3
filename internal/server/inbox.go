package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/leapstack-labs/leapmeta/internal/ingest"
)

// Inbox subdirectories that ingested files are moved to.
const (
	processedDir = "processed"
	failedDir    = "failed"
)

// settleDelay is how long a file must stay unchanged before it is ingested.
const settleDelay = 500 * time.Millisecond

// watchInbox ingests data files written to dir. Each file goes to the raw
// table named after it, appending when the table exists. Files are moved
// to processed/ or failed/ afterwards.
func (s *Server) watchInbox(ctx context.Context, dir string) error {
	for _, sub := range []string{processedDir, failedDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o750); err != nil {
			return fmt.Errorf("failed to prepare inbox: %w", err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch inbox: %w", err)
	}
	s.logger.Info("watching inbox", "dir", dir)

	var (
		mu     sync.Mutex
		timers = make(map[string]*time.Timer)
	)

	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			for _, t := range timers {
				t.Stop()
			}
			mu.Unlock()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if _, err := ingest.DetectFormat(event.Name); err != nil {
				continue
			}

			// Debounce per file
			path := event.Name
			mu.Lock()
			if t, ok := timers[path]; ok {
				t.Stop()
			}
			timers[path] = time.AfterFunc(settleDelay, func() {
				mu.Lock()
				delete(timers, path)
				mu.Unlock()
				s.ingestInboxFile(ctx, dir, path)
			})
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher error", "error", err)
		}
	}
}

// ingestInboxFile ingests one inbox file and moves it out of the inbox.
func (s *Server) ingestInboxFile(ctx context.Context, dir, path string) {
	if ctx.Err() != nil {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}

	dest := processedDir
	if err := s.ingestPath(ctx, path); err != nil {
		s.logger.Error("inbox ingest failed", "file", filepath.Base(path), "error", err)
		dest = failedDir
	}

	target := filepath.Join(dir, dest, filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		s.logger.Error("failed to move inbox file", "file", filepath.Base(path), "error", err)
	}
}

func (s *Server) ingestPath(ctx context.Context, path string) error {
	table, err := ingest.TableForFile(s.cfg.Ingest.RawPrefix, path)
	if err != nil {
		return err
	}
	tables, err := s.store.ListTables(ctx)
	if err != nil {
		return err
	}
	mode := ingest.ModeCreate
	if slices.Contains(tables, table) {
		mode = ingest.ModeAppend
	}

	res, err := s.ingest.IngestFile(ctx, path, table, mode, ingest.ReadOptions{})
	if err != nil && (res == nil || res.Rows == 0) {
		return err
	}
	if err != nil {
		s.logger.Warn("inbox file ingested with warnings", "file", filepath.Base(path), "error", err)
	}
	s.logger.Info("inbox file ingested", "file", filepath.Base(path), "table", res.Table, "mode", string(res.Mode), "rows", res.Rows)
	return nil
}
