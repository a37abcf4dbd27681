package job

import (
	"bytes"
	stderrors "errors"

	"github.com/google/uuid"
)

// errorsAs is a thin re-export of the standard library's errors.As, so
// this package's files don't each need their own stdlib errors import
// alongside github.com/pkg/errors-based helpers elsewhere in the
// module.
func errorsAs(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

func newSegmentUUID() uuid.UUID {
	return uuid.New()
}

// intersect returns the overlap of [aStart, aEnd) and [bStart, bEnd),
// or (nil, nil) if they don't overlap. Empty aEnd/bEnd mean unbounded.
func intersect(aStart, aEnd, bStart, bEnd []byte) (start, end []byte) {
	start = aStart
	if bytes.Compare(bStart, start) > 0 {
		start = bStart
	}

	end = aEnd
	switch {
	case len(aEnd) == 0:
		end = bEnd
	case len(bEnd) != 0 && bytes.Compare(bEnd, aEnd) < 0:
		end = bEnd
	}

	if len(end) != 0 && bytes.Compare(start, end) >= 0 {
		return nil, nil
	}
	return start, end
}
