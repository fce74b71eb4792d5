package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/54b3r/pdfrag/internal/loader"
	"github.com/54b3r/pdfrag/internal/logging"
)

// DefaultSettle is how long a PDF must go without write events before it is
// ingested, so half-copied files are not read.
const DefaultSettle = 750 * time.Millisecond

// WatchOptions tunes Watch.
type WatchOptions struct {
	// Settle overrides DefaultSettle.
	Settle time.Duration
	// OnResult is called after each ingestion attempt. May be nil.
	OnResult func(Result, error)
}

// Watch ingests every PDF created in, written to, or moved into dir until
// ctx is cancelled. Each file is ingested once it has been quiet for the
// settle period. Non-PDF events are ignored. Ingestion failures are logged
// and reported to OnResult; they do not stop the watch.
func (p *Pipeline) Watch(ctx context.Context, dir string, opts WatchOptions) error {
	settle := opts.Settle
	if settle <= 0 {
		settle = DefaultSettle
	}
	log := logging.FromContext(ctx).With(slog.String("component", "watch"), slog.String("dir", dir))

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("ingestion: create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("ingestion: watch %s: %w", dir, err)
	}
	log.Info("ingestion: watching for new PDFs")

	// Each pending entry owns exactly one wg slot, released either by its
	// callback or by a Stop that prevented the callback.
	type entry struct{ timer *time.Timer }
	var (
		mu      sync.Mutex
		pending = make(map[string]*entry)
		wg      sync.WaitGroup
	)
	defer func() {
		mu.Lock()
		for _, e := range pending {
			if e.timer.Stop() {
				wg.Done()
			}
		}
		mu.Unlock()
		wg.Wait()
	}()

	ingest := func(path string, e *entry) {
		defer wg.Done()
		mu.Lock()
		if pending[path] == e {
			delete(pending, path)
		}
		mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		res, err := p.IngestFile(ctx, path)
		if err != nil {
			log.Error("ingestion: watched file failed", slog.String("path", path), slog.String("error", err.Error()))
		}
		if opts.OnResult != nil {
			opts.OnResult(res, err)
		}
	}

	// schedule restarts the quiet period for path. A timer whose callback
	// has already started is never reset, since Reset would run it twice;
	// the path gets a fresh entry instead.
	schedule := func(path string) {
		if e, ok := pending[path]; ok && e.timer.Stop() {
			e.timer.Reset(settle)
			return
		}
		e := &entry{}
		wg.Add(1)
		e.timer = time.AfterFunc(settle, func() { ingest(path, e) })
		pending[path] = e
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("ingestion: watcher error", slog.String("error", err.Error()))
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			path, ok := watchedPDF(event)
			if !ok {
				continue
			}
			mu.Lock()
			schedule(path)
			mu.Unlock()
		}
	}
}

// watchedPDF reports whether event announces PDF content worth ingesting.
func watchedPDF(event fsnotify.Event) (string, bool) {
	// A file renamed into dir arrives as Create; Rename names the old path.
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return "", false
	}
	if !loader.IsPDF(event.Name) {
		return "", false
	}
	if base := filepath.Base(event.Name); base == "" || base[0] == '.' {
		return "", false
	}
	return event.Name, true
}
