package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sort"
	"sync"
)

// App owns the live store connection settings, the cache registry and the
// background services. Connect, Import and Sync are exclusive: each holds
// mu for its whole run.
type App struct {
	mu        sync.Mutex
	cfg       *AppConfig
	events    EventSink
	conn      ConnectionConfig
	driverDSN string
	cache     map[TableIdentity]*CacheEntry
	services  map[string]*http.Server

	dial        dialFunc
	openDataset func(ctx context.Context, locator string) (*Dataset, error)
	openTable   tableOpener
}

func NewApp(cfg *AppConfig, events EventSink) *App {
	if events == nil {
		events = logSink{}
	}
	return &App{
		cfg:         cfg,
		events:      events,
		cache:       map[TableIdentity]*CacheEntry{},
		services:    map[string]*http.Server{},
		dial:        dialStore,
		openDataset: openDataset,
		openTable:   openPostGISTable,
	}
}

// Current returns the live connection settings; the zero value when no
// connect has succeeded.
func (a *App) Current() ConnectionConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn
}

// Connect probes the store and, when reachable, makes it the live store and
// mirrors every table into the local cache. An unreachable store resets the
// live settings to the zero value.
func (a *App) Connect(ctx context.Context, c ConnectionConfig) (*Output, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer resetProgress(a.events)

	a.events.Progress(10)
	driverDSN, err := c.DriverDSN()
	if err != nil {
		a.conn = ConnectionConfig{}
		a.driverDSN = ""
		return nil, fmt.Errorf("connect %s: %w", c.Host, err)
	}
	log.Printf("connecting to %s...", c.Redacted())
	if err := probeStore(ctx, a.dial, c); err != nil {
		a.conn = ConnectionConfig{}
		a.driverDSN = ""
		return nil, &ConnectError{Target: c.Redacted(), Err: err}
	}

	a.conn = c
	a.driverDSN = driverDSN
	return a.resync(ctx)
}

// Sync re-mirrors every table of the live store, replacing the cache.
func (a *App) Sync(ctx context.Context) (*Output, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer resetProgress(a.events)

	if a.conn.IsZero() {
		return nil, ErrNotConnected
	}
	a.events.Progress(10)
	return a.resync(ctx)
}

// Layers returns a snapshot of the cache registry ordered by table.
func (a *App) Layers() []CacheEntry {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]CacheEntry, 0, len(a.cache))
	for _, e := range a.cache {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Table.String() < out[j].Table.String()
	})
	return out
}

// resync clears the registry and mirrors every store table again. Callers
// hold mu.
func (a *App) resync(ctx context.Context) (*Output, error) {
	conn, err := a.dial(ctx, a.conn.StoreDSN())
	if err != nil {
		return nil, &ConnectError{Target: a.conn.Redacted(), Err: err}
	}
	ids, err := listStoreTables(ctx, conn, a.cfg.ExcludeTables)
	conn.Close(ctx)
	if err != nil {
		return nil, err
	}

	a.events.LayersCleared()
	a.cache = map[TableIdentity]*CacheEntry{}

	log.Printf("mirroring %d tables into %s...", len(ids), a.cfg.CacheDir)
	out := &Output{}
	entries, errs := mirrorAll(ctx, a.openTable, a.driverDSN, a.cfg.CacheDir, ids, func(done, total int) {
		a.events.Progress(10 + 80*done/total)
	})
	for _, err := range errs {
		out.errorf("%v", err)
	}
	for _, e := range entries {
		a.register(ctx, e, out)
	}
	out.resultf("mirrored %d of %d tables", len(entries), len(ids))
	return out, nil
}

// register vectorizes a freshly mirrored table and publishes it. A failed
// vectorization leaves the entry without a graphic; tiles for it answer
// ErrMissingGraphic.
func (a *App) register(ctx context.Context, e *CacheEntry, out *Output) {
	if v, err := vectorize(ctx, e, layerStyleFromConfig(a.cfg.Style)); err != nil {
		out.errorf("%v", err)
	} else {
		e = v
	}
	a.cache[e.Table] = e
	a.events.LayerAdded(e.Table.Name, e.Table.Schema)
}

// graphicFor resolves a tile layer name ("schema.table" or "table") to its
// graphic path. It never touches the registry or the store.
func (a *App) graphicFor(layer string) (string, error) {
	id, err := parseTableIdentity(layer, defaultSchema)
	if err != nil {
		return "", fmt.Errorf("layer %q: %w", layer, err)
	}
	return graphicPath(a.cfg.CacheDir, id), nil
}
