package accessor

import (
	"net/http"
	"strconv"
	"time"

	"github.com/unistore/unistore/pkg/errors"
)

// Operation names a contract entry point. Layers key logging fields, metric
// labels and retry classification off it.
type Operation string

const (
	OperationCreate  Operation = "create"
	OperationRead    Operation = "read"
	OperationWrite   Operation = "write"
	OperationStat    Operation = "stat"
	OperationDelete  Operation = "delete"
	OperationList    Operation = "list"
	OperationCopy    Operation = "copy"
	OperationRename  Operation = "rename"
	OperationPresign Operation = "presign"
)

// Operations lists every contract operation, in a stable order.
var Operations = []Operation{
	OperationCreate, OperationRead, OperationWrite, OperationStat,
	OperationDelete, OperationList, OperationCopy, OperationRename,
	OperationPresign,
}

// IsIdempotent reports whether repeating the operation after a failure is
// safe without any guarantee from the backend. Stat, read, list and presign
// observe; delete-by-path converges to the same end state. Everything else
// may duplicate a side effect and needs an explicit SafeToRetry marker.
func (o Operation) IsIdempotent() bool {
	switch o {
	case OperationStat, OperationRead, OperationDelete, OperationList, OperationPresign:
		return true
	default:
		return false
	}
}

// BytesRange selects the half-open byte interval [Offset, Offset+Length).
// The zero value selects the whole stream. Length == 0 with a non-zero
// offset selects everything from Offset to the end.
type BytesRange struct {
	Offset int64
	Length int64
}

// IsFull reports whether the range selects the whole stream.
func (r BytesRange) IsFull() bool {
	return r.Offset == 0 && r.Length == 0
}

// Validate rejects negative offsets and lengths before any backend call.
func (r BytesRange) Validate() error {
	if r.Offset < 0 || r.Length < 0 {
		return errors.Errorf(errors.KindInvalidInput,
			"byte range [%d, +%d) must not be negative", r.Offset, r.Length)
	}
	return nil
}

// Clamp resolves the range against the actual content size. A range end past
// the content is clamped to the available bytes; an offset past the content
// fails with RangeNotSatisfiable.
func (r BytesRange) Clamp(size int64) (offset, length int64, err error) {
	if err := r.Validate(); err != nil {
		return 0, 0, err
	}
	if r.Offset > size {
		return 0, 0, errors.Errorf(errors.KindRangeNotSatisfiable,
			"range offset %d exceeds content length %d", r.Offset, size)
	}
	length = size - r.Offset
	if r.Length > 0 && r.Length < length {
		length = r.Length
	}
	return r.Offset, length, nil
}

// String renders the range for logs and HTTP Range headers ("" when full).
func (r BytesRange) String() string {
	if r.IsFull() {
		return ""
	}
	if r.Length == 0 {
		return "bytes=" + strconv.FormatInt(r.Offset, 10) + "-"
	}
	return "bytes=" + strconv.FormatInt(r.Offset, 10) + "-" +
		strconv.FormatInt(r.Offset+r.Length-1, 10)
}

// OpCreate carries arguments for create. Mode selects whether a file or a
// directory marker is created.
type OpCreate struct {
	Mode Mode
}

// OpRead carries arguments for read.
type OpRead struct {
	Range BytesRange
}

// OpWrite carries arguments for write. ContentLength is -1 when unknown.
type OpWrite struct {
	ContentLength int64
	ContentType   string
	// Append marks an append-style write with no precondition; the retry
	// layer never re-issues it unless the failure is SafeToRetry.
	Append bool
}

// OpStat carries arguments for stat.
type OpStat struct{}

// OpDelete carries arguments for delete.
type OpDelete struct{}

// OpList carries arguments for list. Cursor is the opaque continuation token
// from a previous page, passed back unmodified; Limit bounds the page size
// (0 means backend default).
type OpList struct {
	Delimiter string
	Cursor    string
	Limit     int
}

// OpCopy carries arguments for copy.
type OpCopy struct{}

// OpRename carries arguments for rename.
type OpRename struct{}

// OpPresign carries arguments for presign.
type OpPresign struct {
	// Operation is the operation the signed request will perform; only
	// read, write and stat make sense here.
	Operation Operation
	Expiry    time.Duration
}

// Entry is one listing result.
type Entry struct {
	Path     string
	Metadata *Metadata
}

// ListPage is one page of listing results. An empty Cursor signals the end
// of the listing; a non-empty one is backend-private and must be passed back
// unmodified in the next OpList.
type ListPage struct {
	Entries []Entry
	Cursor  string
}

// PresignedRequest is a signed HTTP request a third party can execute
// without credentials until Expiry.
type PresignedRequest struct {
	Method string
	URL    string
	Header http.Header
	Expiry time.Time
}
