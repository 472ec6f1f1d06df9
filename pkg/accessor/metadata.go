package accessor

import "time"

// Mode tells files and directories apart. It is the only mandatory metadata
// field.
type Mode int

const (
	ModeUnknown Mode = iota
	ModeFile
	ModeDir
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case ModeFile:
		return "file"
	case ModeDir:
		return "dir"
	default:
		return "unknown"
	}
}

type metaField uint8

const (
	fieldContentLength metaField = 1 << iota
	fieldLastModified
	fieldContentType
	fieldETag
	fieldContentMD5
)

// Metadata is an immutable snapshot of an entry's attributes. Every field
// except Mode is optional: an absent field means the backend did not report
// it, never that the value is zero.
type Metadata struct {
	mode          Mode
	contentLength int64
	lastModified  time.Time
	contentType   string
	etag          string
	contentMD5    string
	set           metaField
}

// NewMetadata creates a Metadata snapshot with the given mode and no other
// fields reported.
func NewMetadata(mode Mode) *Metadata {
	return &Metadata{mode: mode}
}

// Mode returns the entry mode.
func (m *Metadata) Mode() Mode { return m.mode }

// WithContentLength reports the entry's content length. Returns m so
// construction chains.
func (m *Metadata) WithContentLength(n int64) *Metadata {
	m.contentLength = n
	m.set |= fieldContentLength
	return m
}

// ContentLength returns the reported content length, if any.
func (m *Metadata) ContentLength() (int64, bool) {
	return m.contentLength, m.set&fieldContentLength != 0
}

// WithLastModified reports the entry's last-modified timestamp.
func (m *Metadata) WithLastModified(t time.Time) *Metadata {
	m.lastModified = t
	m.set |= fieldLastModified
	return m
}

// LastModified returns the reported last-modified timestamp, if any.
func (m *Metadata) LastModified() (time.Time, bool) {
	return m.lastModified, m.set&fieldLastModified != 0
}

// WithContentType reports the entry's content type.
func (m *Metadata) WithContentType(ct string) *Metadata {
	m.contentType = ct
	m.set |= fieldContentType
	return m
}

// ContentType returns the reported content type, if any.
func (m *Metadata) ContentType() (string, bool) {
	return m.contentType, m.set&fieldContentType != 0
}

// WithETag reports the entry's ETag.
func (m *Metadata) WithETag(etag string) *Metadata {
	m.etag = etag
	m.set |= fieldETag
	return m
}

// ETag returns the reported ETag, if any.
func (m *Metadata) ETag() (string, bool) {
	return m.etag, m.set&fieldETag != 0
}

// WithContentMD5 reports the entry's content MD5.
func (m *Metadata) WithContentMD5(sum string) *Metadata {
	m.contentMD5 = sum
	m.set |= fieldContentMD5
	return m
}

// ContentMD5 returns the reported content MD5, if any.
func (m *Metadata) ContentMD5() (string, bool) {
	return m.contentMD5, m.set&fieldContentMD5 != 0
}

// Clone returns an independent copy. Callers own returned Metadata; layers
// that cache snapshots hand out clones so no two callers share one.
func (m *Metadata) Clone() *Metadata {
	cp := *m
	return &cp
}
