package pipeline

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"cmodel/internal/fsutil"
)

// Watcher monitors directories for new exposure bundles and submits
// a measurement job for each one.
type Watcher struct {
	watcher   *fsnotify.Watcher
	pipe      *Pipeline
	log       *slog.Logger
	watchDirs []string
	jobType   JobType
	done      chan struct{}
}

// NewWatcher creates a bundle watcher feeding the pipeline.
func NewWatcher(watchPaths []string, pipe *Pipeline, jobType JobType, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:   fw,
		pipe:      pipe,
		log:       logger,
		watchDirs: watchPaths,
		jobType:   jobType,
		done:      make(chan struct{}),
	}, nil
}

// Start begins monitoring the configured directories.
func (w *Watcher) Start() error {
	for _, dir := range w.watchDirs {
		if err := w.watcher.Add(dir); err != nil {
			return err
		}
		w.log.Info("watching directory", "dir", dir)
	}
	go w.processEvents()
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) processEvents() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !fsutil.IsBundleFile(event.Name) {
				continue
			}
			job := Job{
				ID:         uuid.New().String(),
				Type:       w.jobType,
				BundlePath: event.Name,
			}
			if err := w.pipe.Submit(job); err != nil {
				w.log.Warn("bundle submit failed", "path", event.Name, "error", err)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", "error", err)
		case <-w.done:
			return
		}
	}
}
