package curated

import (
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Provider serves an immutable table snapshot and refreshes it when the
// backing file changes. In-flight requests keep the snapshot they started
// with; a failed reload keeps the last good table.
type Provider struct {
	path    string
	table   atomic.Pointer[Table]
	watcher *fsnotify.Watcher
	logger  *zap.Logger
	done    chan struct{}
}

// NewProvider loads the table and starts watching its file for changes.
// The directory is watched rather than the file so editor save-by-rename
// still triggers a reload.
func NewProvider(path string, logger *zap.Logger) (*Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	table, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
	}

	p := &Provider{
		path:    path,
		watcher: watcher,
		logger:  logger,
		done:    make(chan struct{}),
	}
	p.table.Store(table)

	go p.watch()
	return p, nil
}

// NewStaticProvider wraps a fixed table with no file watching.
func NewStaticProvider(table *Table) *Provider {
	p := &Provider{done: make(chan struct{}), logger: zap.NewNop()}
	p.table.Store(table)
	return p
}

// Table returns the current snapshot.
func (p *Provider) Table() *Table {
	return p.table.Load()
}

// Match matches against the current snapshot.
func (p *Provider) Match(query string, threshold float64) *Response {
	return p.table.Load().Match(query, threshold)
}

func (p *Provider) watch() {
	for {
		select {
		case <-p.done:
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(p.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			p.reload()
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warn("curated table watcher error", zap.Error(err))
		}
	}
}

func (p *Provider) reload() {
	table, err := LoadFile(p.path)
	if err != nil {
		p.logger.Warn("curated table reload failed, keeping previous snapshot",
			zap.String("path", p.path), zap.Error(err))
		return
	}
	p.table.Store(table)
	p.logger.Info("curated table reloaded",
		zap.String("path", p.path), zap.Int("entries", table.Len()))
}

// Close stops the watcher.
func (p *Provider) Close() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	close(p.done)
	if p.watcher != nil {
		return p.watcher.Close()
	}
	return nil
}
