// Package registry implements KVImporter: the UUID-keyed table of
// in-flight engines and the Open/Writing/Closed/Importing/Imported/
// Cleaned state machine each one moves through (spec §4.7). Grounded
// on original_source/src/import/kv_service.rs's try_engine! macro
// (EngineNotFound/EngineInUse reflected as typed errors rather than
// panics) and other_examples/.../tidb-lightning backend.go's
// OpenedEngine/ClosedEngine lifecycle split.
package registry

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/marusama/semaphore"

	"github.com/tikv/importer/internal/engine"
	"github.com/tikv/importer/internal/errs"
	"github.com/tikv/importer/internal/logutil"
)

// State is one point in an engine's lifecycle.
type State int

const (
	StateOpen State = iota
	StateWriting
	StateClosed
	StateImporting
	StateImported
	StateCleaned
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateWriting:
		return "writing"
	case StateClosed:
		return "closed"
	case StateImporting:
		return "importing"
	case StateImported:
		return "imported"
	case StateCleaned:
		return "cleaned"
	default:
		return "unknown"
	}
}

// slot holds one registered engine and its current lifecycle state.
type slot struct {
	mu    sync.Mutex
	state State
	eng   *engine.Engine
}

// KVImporter is the process-wide registry of open engines, gating the
// number simultaneously held open via a semaphore sized to
// max_open_engines (spec §5).
type KVImporter struct {
	baseDir string
	log     logutil.Logger
	sem     semaphore.Semaphore

	mu     sync.Mutex
	slots  map[uuid.UUID]*slot
}

// New builds a KVImporter. baseDir is where each engine's pebble
// instance is created, under a per-UUID subdirectory.
func New(baseDir string, maxOpenEngines int, log logutil.Logger) *KVImporter {
	return &KVImporter{
		baseDir: baseDir,
		log:     log,
		sem:     semaphore.New(maxOpenEngines),
		slots:   make(map[uuid.UUID]*slot),
	}
}

// OpenEngine opens (or reopens, if already registered and not yet
// cleaned) the engine identified by id, blocking until a slot is free
// under max_open_engines. Reopening an engine already in the registry
// is idempotent and returns no error, matching the "opening an engine
// is an implicit no-op if already open" convention used by the
// tidb-lightning backend's OpenEngine.
func (k *KVImporter) OpenEngine(ctx context.Context, id uuid.UUID) error {
	k.mu.Lock()
	if s, ok := k.slots[id]; ok {
		k.mu.Unlock()
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.state == StateCleaned {
			return &errs.EngineInUse{UUID: id}
		}
		return nil
	}
	k.mu.Unlock()

	if err := k.sem.Acquire(ctx, 1); err != nil {
		return errs.Wrap(err, "acquire open-engine slot")
	}

	eng, err := engine.Open(k.baseDir, id, k.log)
	if err != nil {
		k.sem.Release(1)
		return errs.Wrap(err, "open engine")
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.slots[id]; ok {
		// Lost a race with a concurrent OpenEngine(id): release our slot
		// and keep the winner's.
		k.sem.Release(1)
		_ = eng.Cleanup()
		return nil
	}
	k.slots[id] = &slot{state: StateOpen, eng: eng}
	return nil
}

// Write appends mutations to id's engine, transitioning it to Writing
// on first use.
func (k *KVImporter) Write(ctx context.Context, id uuid.UUID, mutations []engine.Mutation) error {
	s, err := k.get(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen && s.state != StateWriting {
		return &errs.EngineInUse{UUID: id}
	}
	if err := s.eng.Write(ctx, mutations); err != nil {
		return err
	}
	s.state = StateWriting
	return nil
}

// CloseEngine transitions id's engine from Writing to Closed, after
// which no further writes are accepted. Releases its max_open_engines
// slot, since the pebble instance remains read-only-open until
// Cleanup but no longer counts against the writer concurrency bound.
// A second Close on an already-Closed engine is a no-op.
func (k *KVImporter) CloseEngine(id uuid.UUID) error {
	s, err := k.get(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return nil
	}
	if s.state != StateOpen && s.state != StateWriting {
		return &errs.EngineInUse{UUID: id}
	}
	if err := s.eng.Close(); err != nil {
		return err
	}
	s.state = StateClosed
	k.sem.Release(1)
	return nil
}

// BeginImport transitions id's engine from Closed to Importing,
// returning the *engine.Engine for ImportJob to consume. Rejects
// concurrent import attempts on the same engine.
func (k *KVImporter) BeginImport(id uuid.UUID) (*engine.Engine, error) {
	s, err := k.get(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateClosed {
		return nil, &errs.EngineInUse{UUID: id}
	}
	s.state = StateImporting
	return s.eng, nil
}

// FinishImport transitions id's engine from Importing to Imported.
// importErr, if non-nil, rolls the engine back to Closed instead so a
// caller can retry BeginImport.
func (k *KVImporter) FinishImport(id uuid.UUID, importErr error) error {
	s, err := k.get(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateImporting {
		return &errs.EngineInUse{UUID: id}
	}
	if importErr != nil {
		s.state = StateClosed
		return nil
	}
	s.state = StateImported
	return nil
}

// Cleanup removes id's engine entirely: its pebble instance is closed
// and its on-disk files deleted, and the UUID is freed for reuse.
// Cleanup requires the engine to be Imported; it is final and any
// other state is rejected as EngineInUse.
func (k *KVImporter) Cleanup(id uuid.UUID) error {
	s, err := k.get(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.state != StateImported {
		s.mu.Unlock()
		return &errs.EngineInUse{UUID: id}
	}
	cleanupErr := s.eng.Cleanup()
	s.state = StateCleaned
	s.mu.Unlock()

	k.mu.Lock()
	delete(k.slots, id)
	k.mu.Unlock()

	return errs.Wrap(cleanupErr, "cleanup engine")
}

// State reports id's current lifecycle state.
func (k *KVImporter) State(id uuid.UUID) (State, error) {
	s, err := k.get(id)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

func (k *KVImporter) get(id uuid.UUID) (*slot, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s, ok := k.slots[id]
	if !ok {
		return nil, &errs.EngineNotFound{UUID: id}
	}
	return s, nil
}
