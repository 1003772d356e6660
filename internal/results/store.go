package results

import (
	"context"
	"encoding/json"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/ricesearch/rice-deteriorate/internal/config"
	"github.com/ricesearch/rice-deteriorate/internal/evaluation"
	"github.com/ricesearch/rice-deteriorate/internal/pkg/errors"
)

// Cell is one stored grid result.
type Cell struct {
	Key          Key                    `json:"key"`
	Swaps        int                    `json:"applied_swaps"`
	Replacements int                    `json:"applied_replacements"`
	Comparison   *evaluation.Comparison `json:"comparison"`
}

// Store persists grid cells.
type Store interface {
	// Put stores a cell, replacing any cell with the same key.
	Put(ctx context.Context, cell *Cell) error

	// Get returns the cell for key, or a NOT_FOUND error.
	Get(ctx context.Context, key Key) (*Cell, error)

	// All returns every stored cell sorted by key.
	All(ctx context.Context) ([]*Cell, error)

	// Clear deletes every stored cell.
	Clear(ctx context.Context) error

	// Close releases the store.
	Close() error
}

// NewStore creates a store from configuration.
func NewStore(cfg config.StoreConfig) (Store, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		rs, err := NewRedisStore(cfg.RedisURL, cfg.KeyPrefix, time.Duration(cfg.TTL)*time.Second)
		if err != nil {
			return nil, err
		}
		return rs, nil
	default:
		return nil, errors.Newf(errors.CodeValidation, "unknown store type %q", cfg.Type)
	}
}

// MemoryStore keeps cells in a map. It is safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	cells  map[Key]*Cell
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cells: make(map[Key]*Cell)}
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, cell *Cell) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.ServiceUnavailableError("result store")
	}
	s.cells[cell.Key] = cell
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key Key) (*Cell, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cell, ok := s.cells[key]
	if !ok {
		return nil, errors.NotFoundError("cell " + key.String())
	}
	return cell, nil
}

// All implements Store.
func (s *MemoryStore) All(_ context.Context) ([]*Cell, error) {
	s.mu.RLock()
	cells := make([]*Cell, 0, len(s.cells))
	for _, cell := range s.cells {
		cells = append(cells, cell)
	}
	s.mu.RUnlock()
	sortCells(cells)
	return cells, nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.ServiceUnavailableError("result store")
	}
	clear(s.cells)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func sortCells(cells []*Cell) {
	sort.Slice(cells, func(i, j int) bool {
		return cells[i].Key.Less(cells[j].Key)
	})
}

// Snapshot writes every cell of store to w as indented JSON.
func Snapshot(ctx context.Context, store Store, w io.Writer) error {
	cells, err := store.All(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cells); err != nil {
		return errors.InternalError("encoding snapshot", err)
	}
	return nil
}
