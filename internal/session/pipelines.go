package session

import (
	"fmt"
	"sync/atomic"

	"companion/internal/catalog"
	"companion/internal/logging"
	"companion/internal/pipeline"
)

// PipelineSource supplies the pipeline for the next turn. A turn uses one
// pipeline from start to finish even if the source changes meanwhile.
type PipelineSource interface {
	Pipeline() *pipeline.Pipeline
}

// Fixed is a PipelineSource that never changes.
type Fixed struct {
	p *pipeline.Pipeline
}

// NewFixed wraps p.
func NewFixed(p *pipeline.Pipeline) Fixed { return Fixed{p: p} }

// Pipeline implements PipelineSource.
func (f Fixed) Pipeline() *pipeline.Pipeline { return f.p }

// Reloadable rebuilds its pipeline when the catalog changes. A catalog the
// pipeline refuses keeps the previous pipeline in place.
type Reloadable struct {
	settings pipeline.Settings
	opts     []pipeline.Option
	current  atomic.Pointer[pipeline.Pipeline]
}

// NewReloadable builds the first pipeline from cat.
func NewReloadable(cat *catalog.Catalog, settings pipeline.Settings, opts ...pipeline.Option) (*Reloadable, error) {
	p, err := pipeline.New(cat, settings, opts...)
	if err != nil {
		return nil, err
	}
	r := &Reloadable{settings: settings, opts: opts}
	r.current.Store(p)
	return r, nil
}

// Pipeline implements PipelineSource.
func (r *Reloadable) Pipeline() *pipeline.Pipeline { return r.current.Load() }

// Update swaps in a pipeline built from cat.
func (r *Reloadable) Update(cat *catalog.Catalog) error {
	p, err := pipeline.New(cat, r.settings, r.opts...)
	if err != nil {
		logging.SessionWarn("Catalog %s rejected by pipeline, keeping %s: %v",
			cat.Version(), r.Pipeline().Catalog().Version(), err)
		return fmt.Errorf("catalog %s rejected: %w", cat.Version(), err)
	}
	r.current.Store(p)
	logging.Session("Pipeline rebuilt for catalog %s", cat.Version())
	return nil
}

// OnReload adapts Update to a catalog watcher callback.
func (r *Reloadable) OnReload(cat *catalog.Catalog) {
	_ = r.Update(cat)
}
