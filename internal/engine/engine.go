package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tikv/importer/internal/logutil"
)

// CF names the two column families every engine writes into, matching
// engine.rs's "default" and "write".
type CF string

const (
	CFDefault CF = "default"
	CFWrite   CF = "write"
)

var allCFs = [...]CF{CFDefault, CFWrite}

// cfPrefix distinguishes the two CFs' keyspaces within the single
// pebble instance backing an Engine. pebble has no native column
// family concept, so each CF gets its own one-byte key prefix instead;
// segmentWriter still emits a physically separate segment file per CF
// on cut, matching engine.rs's per-CF SST output.
func cfPrefix(cf CF) byte {
	if cf == CFDefault {
		return 0x01
	}
	return 0x02
}

// Mutation is one user write: a key at a commit timestamp, and its
// value (empty means a delete marker in the original scheme, but this
// module only ever appends, matching the bulk-load Write path).
type Mutation struct {
	Key      []byte
	CommitTS uint64
	Value    []byte
}

// Engine is one job's ephemeral staging store: a pebble instance tuned
// for sequential bulk writes and no background compaction, discarded
// once the job importing from it finishes. Grounded on
// original_source/src/import/engine.rs's Engine (Arc<DB> wrapper) and
// tuned per its tune_dboptions_for_bulk_load.
type Engine struct {
	UUID uuid.UUID
	dir  string
	db   *pebble.DB
	log  logutil.Logger

	mu        sync.Mutex
	writable  bool
	sizeIndex *sizeIndexCollector
}

// Open creates (or reopens) the pebble instance backing id under
// baseDir/<uuid>.
func Open(baseDir string, id uuid.UUID, log logutil.Logger) (*Engine, error) {
	dir := filepath.Join(baseDir, id.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create engine dir")
	}

	opts := bulkLoadOptions()
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "open pebble engine %s", id)
	}

	return &Engine{
		UUID:      id,
		dir:       dir,
		db:        db,
		log:       log.With(zap.String("engine", id.String())),
		writable:  true,
		sizeIndex: NewSizeIndexCollector(),
	}, nil
}

// bulkLoadOptions tunes pebble the way engine.rs's
// tune_dboptions_for_bulk_load tunes RocksDB: a large memtable and no
// foreground stalls on L0 during the write phase.
func bulkLoadOptions() *pebble.Options {
	opts := &pebble.Options{
		MemTableSize:                256 << 20,
		L0CompactionThreshold:       1 << 20, // effectively disables L0-triggered compaction during the write phase
		L0StopWritesThreshold:       1 << 20, // effectively disables L0 write stalls during the write phase
		DisableAutomaticCompactions: true,
	}
	opts.EnsureDefaults()
	return opts
}

// Write applies a batch of mutations, each routed to its CF's keyspace
// by value length (spec §3: short values land in "write" inline,
// long values spill to "default" with a pointer left in "write").
func (e *Engine) Write(ctx context.Context, mutations []Mutation) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.writable {
		return errors.New("engine is not open for writes")
	}

	batch := e.db.NewBatch()
	defer batch.Close()

	for _, m := range mutations {
		if isShortValue(m.Value) {
			key := EncodeKey([]byte{cfPrefix(CFWrite)}, m.Key, m.CommitTS)
			if err := batch.Set(key, m.Value, nil); err != nil {
				return errors.Wrap(err, "stage short value")
			}
			e.sizeIndex.Observe(m.Key, uint64(len(key)+len(m.Value)))
			continue
		}
		dataKey := EncodeKey([]byte{cfPrefix(CFDefault)}, m.Key, m.CommitTS)
		if err := batch.Set(dataKey, m.Value, nil); err != nil {
			return errors.Wrap(err, "stage long value")
		}
		ptrKey := EncodeKey([]byte{cfPrefix(CFWrite)}, m.Key, m.CommitTS)
		if err := batch.Set(ptrKey, nil, nil); err != nil {
			return errors.Wrap(err, "stage value pointer")
		}
		e.sizeIndex.Observe(m.Key, uint64(len(ptrKey)))
	}

	if err := e.db.Apply(batch, pebble.NoSync); err != nil {
		return errors.Wrap(err, "apply mutation batch")
	}
	return nil
}

// Close marks the engine read-only for new writes; the pebble instance
// stays open so SegmentWriter can still read from it until Cleanup.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.writable = false
	e.mu.Unlock()
	return nil
}

// Cleanup closes the pebble instance and removes its on-disk files,
// the terminal step of the Open/Write/Close/Import/Cleaned state
// machine (spec §4.7).
func (e *Engine) Cleanup() error {
	if err := e.db.Close(); err != nil {
		return errors.Wrap(err, "close pebble engine")
	}
	return errors.Wrap(os.RemoveAll(e.dir), "remove engine dir")
}

