package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/skywatchai/reportforge/pkg/domain"
)

// PipelineProvider loads a pipeline graph from a YAML file and hot-reloads
// it when the file changes. New jobs pick up the latest graph; jobs already
// running keep the snapshot they started with. A file that fails to parse or
// validate is logged and ignored, keeping the last good graph active.
type PipelineProvider struct {
	path    string
	logger  *slog.Logger
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc

	mu    sync.RWMutex
	graph *domain.PipelineGraph
}

// NewPipelineProvider creates a provider watching the given definition file.
// The initial load must succeed.
func NewPipelineProvider(path string, logger *slog.Logger) (*PipelineProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve pipeline file path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &PipelineProvider{
		path:    absPath,
		logger:  logger,
		watcher: watcher,
		cancel:  cancel,
	}

	graph, err := loadPipelineFile(absPath)
	if err != nil {
		cancel()
		_ = watcher.Close()
		return nil, err
	}
	p.graph = graph

	// Watch the directory, not the file: editors replace files on save.
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		cancel()
		_ = watcher.Close()
		return nil, fmt.Errorf("watch pipeline directory: %w", err)
	}
	go p.watchLoop(ctx)

	return p, nil
}

// Current returns the active pipeline graph.
func (p *PipelineProvider) Current() *domain.PipelineGraph {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.graph
}

// Close stops the watcher.
func (p *PipelineProvider) Close() error {
	p.cancel()
	return p.watcher.Close()
}

func (p *PipelineProvider) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if event.Name != p.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			graph, err := loadPipelineFile(p.path)
			if err != nil {
				p.logger.Error("pipeline reload failed, keeping previous definition",
					"path", p.path, "error", err)
				continue
			}
			p.mu.Lock()
			p.graph = graph
			p.mu.Unlock()
			p.logger.Info("pipeline definition reloaded",
				"path", p.path, "pipeline", graph.Name, "stages", len(graph.Stages))
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("pipeline watcher error", "error", err)
		}
	}
}

func loadPipelineFile(path string) (*domain.PipelineGraph, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is configured at startup
	if err != nil {
		return nil, fmt.Errorf("read pipeline file: %w", err)
	}
	var graph domain.PipelineGraph
	if err := yaml.Unmarshal(data, &graph); err != nil {
		return nil, fmt.Errorf("parse pipeline file: %w", err)
	}
	if err := graph.Validate(); err != nil {
		return nil, err
	}
	return &graph, nil
}
