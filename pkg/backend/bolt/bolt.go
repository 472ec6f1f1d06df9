// Package bolt implements a backend over a single bbolt database file,
// giving a durable local store without an external service. Object bytes
// and metadata live in separate buckets keyed by full path, so stat and
// list never load object bodies.
package bolt

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"io"
	"sort"
	"strings"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/unistore/unistore/pkg/accessor"
	"github.com/unistore/unistore/pkg/errors"
)

const defaultPageSize = 1000

var (
	bucketObjects = []byte("objects")
	bucketMeta    = []byte("meta")
)

// record is the stored metadata encoding.
type record struct {
	Mode        string    `json:"mode"`
	Length      int64     `json:"length"`
	Modified    time.Time `json:"modified"`
	ETag        string    `json:"etag,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
}

func (r record) metadata() *accessor.Metadata {
	mode := accessor.ModeFile
	if r.Mode == "dir" {
		mode = accessor.ModeDir
	}
	md := accessor.NewMetadata(mode).WithLastModified(r.Modified)
	if mode == accessor.ModeFile {
		md = md.WithContentLength(r.Length)
	}
	if r.ETag != "" {
		md = md.WithETag(r.ETag)
	}
	if r.ContentType != "" {
		md = md.WithContentType(r.ContentType)
	}
	return md
}

// Backend stores objects in a bbolt database.
type Backend struct {
	accessor.Unimplemented

	name string
	path string
	db   *bbolt.DB
}

// Open opens (or creates) the database file at path.
func Open(name, path string) (*Backend, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.New(errors.KindOther, "opening bolt database").
			WithPath(path).
			WithCause(err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketObjects); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketMeta)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.New(errors.KindOther, "preparing bolt buckets").WithCause(err)
	}
	if name == "" {
		name = "bolt"
	}
	return &Backend{name: name, path: path, db: db}, nil
}

// Close releases the database file.
func (b *Backend) Close() error { return b.db.Close() }

// Info implements accessor.Accessor.
func (b *Backend) Info() accessor.About {
	return accessor.About{
		Scheme: "bolt",
		Name:   b.name,
		Root:   b.path,
		Capabilities: accessor.CapCreate | accessor.CapRead | accessor.CapWrite |
			accessor.CapStat | accessor.CapDelete | accessor.CapList |
			accessor.CapCopy | accessor.CapRename,
	}
}

func internalErr(msg string, err error) error {
	return errors.New(errors.KindOther, msg).WithCause(err)
}

func putRecord(tx *bbolt.Tx, path string, rec record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketMeta).Put([]byte(path), raw)
}

func getRecord(tx *bbolt.Tx, path string) (*record, bool) {
	raw := tx.Bucket(bucketMeta).Get([]byte(path))
	if raw == nil {
		return nil, false
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false
	}
	return &rec, true
}

func (b *Backend) Create(ctx context.Context, path string, args accessor.OpCreate) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		if _, ok := getRecord(tx, path); ok {
			return errors.Errorf(errors.KindAlreadyExists, "%s already exists", path)
		}
		mode := "file"
		if args.Mode == accessor.ModeDir {
			mode = "dir"
		}
		return putRecord(tx, path, record{Mode: mode, Modified: time.Now()})
	})
	if err != nil {
		if errors.Is(err, errors.KindAlreadyExists) {
			return err
		}
		return internalErr("bolt create failed", err)
	}
	return nil
}

func (b *Backend) Read(ctx context.Context, path string, args accessor.OpRead) (io.ReadCloser, error) {
	var data []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketObjects).Get([]byte(path))
		if raw == nil {
			if _, ok := getRecord(tx, path); !ok {
				return errors.Errorf(errors.KindNotFound, "%s does not exist", path)
			}
			// Created but never written.
			data = nil
			return nil
		}
		data = append([]byte(nil), raw...)
		return nil
	})
	if err != nil {
		if errors.Is(err, errors.KindNotFound) {
			return nil, err
		}
		return nil, internalErr("bolt read failed", err)
	}

	offset, length, err := args.Range.Clamp(int64(len(data)))
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data[offset : offset+length])), nil
}

func (b *Backend) Write(ctx context.Context, path string, args accessor.OpWrite, body io.Reader) (*accessor.Metadata, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.New(errors.KindOther, "reading write body").WithCause(err)
	}

	var rec record
	err = b.db.Update(func(tx *bbolt.Tx) error {
		if args.Append {
			if prev := tx.Bucket(bucketObjects).Get([]byte(path)); prev != nil {
				data = append(append([]byte(nil), prev...), data...)
			}
		}
		sum := md5.Sum(data)
		rec = record{
			Mode:        "file",
			Length:      int64(len(data)),
			Modified:    time.Now(),
			ETag:        hex.EncodeToString(sum[:]),
			ContentType: args.ContentType,
		}
		if err := tx.Bucket(bucketObjects).Put([]byte(path), data); err != nil {
			return err
		}
		return putRecord(tx, path, rec)
	})
	if err != nil {
		return nil, internalErr("bolt write failed", err)
	}
	return rec.metadata(), nil
}

func (b *Backend) Stat(ctx context.Context, path string, args accessor.OpStat) (*accessor.Metadata, error) {
	var md *accessor.Metadata
	err := b.db.View(func(tx *bbolt.Tx) error {
		if rec, ok := getRecord(tx, path); ok {
			md = rec.metadata()
			return nil
		}
		// Implicit directory: anything stored below it makes it exist.
		dir := path
		if !strings.HasSuffix(dir, "/") {
			dir += "/"
		}
		if dir == "/" {
			md = accessor.NewMetadata(accessor.ModeDir)
			return nil
		}
		c := tx.Bucket(bucketMeta).Cursor()
		if k, _ := c.Seek([]byte(dir)); k != nil && strings.HasPrefix(string(k), dir) {
			md = accessor.NewMetadata(accessor.ModeDir)
			return nil
		}
		return errors.Errorf(errors.KindNotFound, "%s does not exist", path)
	})
	if err != nil {
		if errors.Is(err, errors.KindNotFound) {
			return nil, err
		}
		return nil, internalErr("bolt stat failed", err)
	}
	return md, nil
}

func (b *Backend) Delete(ctx context.Context, path string, args accessor.OpDelete) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		if _, ok := getRecord(tx, path); !ok {
			return errors.Errorf(errors.KindNotFound, "%s does not exist", path)
		}
		if err := tx.Bucket(bucketObjects).Delete([]byte(path)); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Delete([]byte(path))
	})
	if err != nil {
		if errors.Is(err, errors.KindNotFound) {
			return err
		}
		return internalErr("bolt delete failed", err)
	}
	return nil
}

func (b *Backend) List(ctx context.Context, path string, args accessor.OpList) (*accessor.ListPage, error) {
	if args.Limit < 0 {
		return nil, errors.Errorf(errors.KindInvalidInput, "list limit %d must not be negative", args.Limit)
	}
	limit := args.Limit
	if limit == 0 {
		limit = defaultPageSize
	}
	dir := path
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}

	var entries []accessor.Entry
	err := b.db.View(func(tx *bbolt.Tx) error {
		seen := make(map[string]*accessor.Metadata)
		c := tx.Bucket(bucketMeta).Cursor()
		prefix := []byte(dir)
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			key := string(k)
			if key == dir {
				continue
			}
			rest := strings.TrimPrefix(key, dir)

			if args.Delimiter != "" {
				if i := strings.Index(rest, args.Delimiter); i >= 0 && i < len(rest)-1 {
					child := dir + rest[:i+1]
					if _, ok := seen[child]; !ok {
						seen[child] = accessor.NewMetadata(accessor.ModeDir)
					}
					continue
				}
			}
			var rec record
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			seen[key] = rec.metadata()
		}
		for key, md := range seen {
			entries = append(entries, accessor.Entry{Path: key, Metadata: md})
		}
		return nil
	})
	if err != nil {
		return nil, internalErr("bolt list failed", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	start := 0
	if args.Cursor != "" {
		start = sort.Search(len(entries), func(i int) bool {
			return entries[i].Path > args.Cursor
		})
	}
	end := start + limit
	if end > len(entries) {
		end = len(entries)
	}
	page := &accessor.ListPage{Entries: entries[start:end]}
	if end < len(entries) {
		page.Cursor = entries[end-1].Path
	}
	return page, nil
}

func (b *Backend) Copy(ctx context.Context, src, dst string, args accessor.OpCopy) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		rec, ok := getRecord(tx, src)
		if !ok {
			return errors.Errorf(errors.KindNotFound, "%s does not exist", src)
		}
		if data := tx.Bucket(bucketObjects).Get([]byte(src)); data != nil {
			if err := tx.Bucket(bucketObjects).Put([]byte(dst), append([]byte(nil), data...)); err != nil {
				return err
			}
		}
		rec.Modified = time.Now()
		return putRecord(tx, dst, *rec)
	})
	if err != nil {
		if errors.Is(err, errors.KindNotFound) {
			return err
		}
		return internalErr("bolt copy failed", err)
	}
	return nil
}

func (b *Backend) Rename(ctx context.Context, src, dst string, args accessor.OpRename) error {
	if err := b.Copy(ctx, src, dst, accessor.OpCopy{}); err != nil {
		return err
	}
	return b.Delete(ctx, src, accessor.OpDelete{})
}
