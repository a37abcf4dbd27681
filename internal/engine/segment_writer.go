package engine

import (
	"bufio"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/pebble/sstable"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/tikv/importer/internal/errs"
)

// SegmentInfo describes one finished, immutable SST segment file ready
// for upload. Crc32 and Length are computed lazily on first access
// (Crc32()) rather than while writing, matching engine.rs's
// LazySSTInfo/Crc32Writer: most callers only need the file path to
// stream it, and hashing up front would double the I/O for no reason.
type SegmentInfo struct {
	CF       CF
	Path     string
	RangeMin []byte
	RangeMax []byte

	length uint64
	crc32  uint32
	summed bool
}

// Length returns the segment file's size in bytes.
func (s *SegmentInfo) Length() (uint64, error) {
	if err := s.ensureSummed(); err != nil {
		return 0, err
	}
	return s.length, nil
}

// Crc32 returns the segment file's CRC32 checksum, computed on first
// call and cached thereafter.
func (s *SegmentInfo) Crc32() (uint32, error) {
	if err := s.ensureSummed(); err != nil {
		return 0, err
	}
	return s.crc32, nil
}

func (s *SegmentInfo) ensureSummed() error {
	if s.summed {
		return nil
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return errors.Wrapf(err, "open segment %s", s.Path)
	}
	defer f.Close()

	h := crc32.NewIEEE()
	n, err := io.Copy(h, bufio.NewReader(f))
	if err != nil {
		return errors.Wrapf(err, "checksum segment %s", s.Path)
	}
	s.length = uint64(n)
	s.crc32 = h.Sum32()
	s.summed = true
	return nil
}

// segmentWriter wraps one *sstable.Writer per non-empty CF, splitting
// each Put between them by value length. Grounded on
// kwbase/pkg/storage/sst_writer.go's SSTWriter (the Put/Finish shape)
// and engine.rs's SSTWriter (the two-CF, short/long split).
type segmentWriter struct {
	dir      string
	jobID    uuid.UUID
	writers  map[CF]*sstable.Writer
	files    map[CF]*os.File
	rangeMin []byte
	rangeMax []byte
	started  bool
	lastKey  []byte
}

func newSegmentWriter(dir string, jobID uuid.UUID) *segmentWriter {
	return &segmentWriter{
		dir:     dir,
		jobID:   jobID,
		writers: make(map[CF]*sstable.Writer),
		files:   make(map[CF]*os.File),
	}
}

// Put adds one MVCC-encoded entry, opening that CF's writer lazily on
// first use so CFs with no entries never produce an (empty, invalid)
// SST file - matching engine.rs's finish() only returning infos for
// CFs with at least one entry. Keys must be delivered in strictly
// increasing order (spec's write contract); a non-increasing or
// duplicate key fails with *errs.InvalidInput rather than silently
// producing an unsorted or duplicate-keyed SST.
func (w *segmentWriter) Put(userKey []byte, commitTS uint64, value []byte) error {
	if w.lastKey != nil && bytesCompare(userKey, w.lastKey) <= 0 {
		return &errs.InvalidInput{Reason: "keys must be delivered in strictly increasing order"}
	}
	w.lastKey = append([]byte(nil), userKey...)

	w.trackRange(userKey)

	if isShortValue(value) {
		return w.put(CFWrite, EncodeKey(nil, userKey, commitTS), value)
	}
	if err := w.put(CFDefault, EncodeKey(nil, userKey, commitTS), value); err != nil {
		return err
	}
	return w.put(CFWrite, EncodeKey(nil, userKey, commitTS), nil)
}

// trackRange extends the writer's observed [rangeMin, rangeMax] to
// include userKey. Safe to call out of strict key order (CutSegment
// scans CFDefault and CFWrite as separate passes).
func (w *segmentWriter) trackRange(userKey []byte) {
	if !w.started {
		w.rangeMin = append([]byte(nil), userKey...)
		w.rangeMax = append([]byte(nil), userKey...)
		w.started = true
		return
	}
	if less(userKey, w.rangeMin) {
		w.rangeMin = append([]byte(nil), userKey...)
	}
	if greater(userKey, w.rangeMax) {
		w.rangeMax = append([]byte(nil), userKey...)
	}
}

func (w *segmentWriter) put(cf CF, key, value []byte) error {
	sw, err := w.writerFor(cf)
	if err != nil {
		return err
	}
	return errors.Wrapf(sw.Set(key, value), "write entry to %s segment", cf)
}

func (w *segmentWriter) writerFor(cf CF) (*sstable.Writer, error) {
	if sw, ok := w.writers[cf]; ok {
		return sw, nil
	}

	path := filepath.Join(w.dir, w.jobID.String()+"."+string(cf)+".sst")
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "create segment file %s", path)
	}

	sw := sstable.NewWriter(f, sstable.WriterOptions{
		TableFormat: sstable.TableFormatPebblev2,
	})
	w.writers[cf] = sw
	w.files[cf] = f
	return sw, nil
}

// Finish closes every opened CF writer and returns one SegmentInfo per
// non-empty CF.
func (w *segmentWriter) Finish() ([]*SegmentInfo, error) {
	infos := make([]*SegmentInfo, 0, len(w.writers))
	for cf, sw := range w.writers {
		if err := sw.Close(); err != nil {
			return nil, errors.Wrapf(err, "finish %s segment", cf)
		}
		infos = append(infos, &SegmentInfo{
			CF:       cf,
			Path:     w.files[cf].Name(),
			RangeMin: w.rangeMin,
			RangeMax: w.rangeMax,
		})
	}
	return infos, nil
}

func less(a, b []byte) bool {
	return bytesCompare(a, b) < 0
}

func greater(a, b []byte) bool {
	return bytesCompare(a, b) > 0
}

func bytesCompare(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}
