// Package errs defines the typed error kinds that the staging service's
// core surfaces to its callers. Most failures are wrapped with
// github.com/pkg/errors for stack traces; the kinds below are the ones
// callers are expected to distinguish by type (see spec §7 propagation
// policy).
package errs

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// EngineNotFound is returned when an operation names a UUID with no
// matching engine slot in the registry.
type EngineNotFound struct {
	UUID uuid.UUID
}

func (e *EngineNotFound) Error() string {
	return fmt.Sprintf("engine %s not found", e.UUID)
}

// EngineInUse is returned when Open/Close/Import races another caller
// or the engine's state forbids the requested transition.
type EngineInUse struct {
	UUID uuid.UUID
}

func (e *EngineInUse) Error() string {
	return fmt.Sprintf("engine %s is in use", e.UUID)
}

// InvalidInput is returned by SegmentWriter.Put when keys are not
// delivered in strictly increasing order, or are duplicated.
type InvalidInput struct {
	Reason string
}

func (e *InvalidInput) Error() string { return "invalid input: " + e.Reason }

// InvalidChunk is returned when a WriteStream's first frame is not a
// head frame, or a later frame lacks a batch.
type InvalidChunk struct{}

func (e *InvalidChunk) Error() string { return "invalid chunk" }

// FileExists is returned (and by convention treated as success by
// callers that can tolerate idempotent re-delivery) when a segment file
// or temp-db path already exists on disk.
type FileExists struct {
	Path string
}

func (e *FileExists) Error() string { return fmt.Sprintf("file %q exists", e.Path) }

// FileCorrupted is returned when a segment's computed CRC32/length does
// not match its recorded SegmentInfo.
type FileCorrupted struct {
	Path   string
	Reason string
}

func (e *FileCorrupted) Error() string {
	return fmt.Sprintf("file %q corrupted: %s", e.Path, e.Reason)
}

// NotLeader is returned by the store RPC client when the targeted peer
// is not (or no longer) the region's leader. Peer, if known, is the
// store id the server believes is now leading.
type NotLeader struct {
	Peer uint64 // 0 means unknown
}

func (e *NotLeader) Error() string {
	if e.Peer == 0 {
		return "not leader, new leader unknown"
	}
	return fmt.Sprintf("not leader, new leader may be store %d", e.Peer)
}

// EpochNotMatch is returned when a region's epoch has advanced (split
// or conf change) since it was last resolved. CurrentRegions is PD's
// current view of the region(s) covering the old range.
type EpochNotMatch struct {
	CurrentRegions []RegionShape
}

func (e *EpochNotMatch) Error() string {
	return fmt.Sprintf("epoch not match, %d current regions", len(e.CurrentRegions))
}

// RegionShape is the minimal (start, end) shape carried by EpochNotMatch;
// kept separate from internal/importpb.Region to avoid an import cycle
// between errs and importpb.
type RegionShape struct {
	StartKey []byte
	EndKey   []byte
}

// UpdateRegion signals a caller should refresh its cached region before
// retrying; carries no data of its own kind beyond the triggering cause.
type UpdateRegion struct {
	Cause error
}

func (e *UpdateRegion) Error() string { return fmt.Sprintf("update region: %v", e.Cause) }
func (e *UpdateRegion) Unwrap() error { return e.Cause }

// ImportJobFailed wraps the first recorded segment failure of an
// ImportJob.
type ImportJobFailed struct {
	Msg string
}

func (e *ImportJobFailed) Error() string { return e.Msg }

// ImportSSTJobFailed is the terminal error of a single SSTImporter run
// after retries are exhausted.
type ImportSSTJobFailed struct {
	Msg string
}

func (e *ImportSSTJobFailed) Error() string { return e.Msg }

// PrepareRangeJobFailed wraps a PrepareJob failure. PrepareJob mostly
// degrades gracefully (skips a boundary) rather than failing;
// ClientFacade returns this when PrepareJob.Run returns an error.
type PrepareRangeJobFailed struct {
	Msg string
}

func (e *PrepareRangeJobFailed) Error() string { return e.Msg }

// ResourceTemporarilyUnavailable is returned by SSTImporter when a
// target store's disk headroom check fails before upload begins.
type ResourceTemporarilyUnavailable struct {
	Msg string
}

func (e *ResourceTemporarilyUnavailable) Error() string { return e.Msg }

// Wrap is a thin re-export of errors.Wrap so callers in this module
// don't need to also import github.com/pkg/errors for the common case.
func Wrap(err error, msg string) error { return errors.Wrap(err, msg) }

// Wrapf is the formatted form of Wrap.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// IsRetryable reports whether err is one of the kinds that SSTImporter's
// internal retry loop recovers from locally rather than surfacing to the
// caller (NotLeader and EpochNotMatch). PrepareJob does not retry: a
// failed split or scatter is logged and that boundary is skipped.
func IsRetryable(err error) bool {
	var notLeader *NotLeader
	var epochNotMatch *EpochNotMatch
	return errors.As(err, &notLeader) || errors.As(err, &epochNotMatch)
}
