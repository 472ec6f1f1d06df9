package layers

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/unistore/unistore/pkg/accessor"
)

// mockAccessor is a scripted inner accessor for layer tests. Each operation
// records its calls and pops the next scripted error (nil meaning success).
type mockAccessor struct {
	mu sync.Mutex

	about accessor.About

	// objects backs successful reads and stats.
	objects map[string][]byte

	// script holds per-operation error sequences. When an operation's
	// sequence is exhausted further calls succeed.
	script map[accessor.Operation][]error

	calls []accessor.Operation
	paths []string
}

func newMockAccessor() *mockAccessor {
	return &mockAccessor{
		about: accessor.About{
			Scheme:       "mock",
			Name:         "mock",
			Root:         "/",
			Capabilities: accessor.CapAll,
		},
		objects: make(map[string][]byte),
		script:  make(map[accessor.Operation][]error),
	}
}

func (m *mockAccessor) fail(op accessor.Operation, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script[op] = append(m.script[op], errs...)
}

func (m *mockAccessor) next(op accessor.Operation, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, op)
	m.paths = append(m.paths, path)
	seq := m.script[op]
	if len(seq) == 0 {
		return nil
	}
	err := seq[0]
	m.script[op] = seq[1:]
	return err
}

func (m *mockAccessor) callCount(op accessor.Operation) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (m *mockAccessor) lastPath() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.paths) == 0 {
		return ""
	}
	return m.paths[len(m.paths)-1]
}

func (m *mockAccessor) Info() accessor.About { return m.about }

func (m *mockAccessor) Create(ctx context.Context, path string, args accessor.OpCreate) error {
	return m.next(accessor.OperationCreate, path)
}

func (m *mockAccessor) Read(ctx context.Context, path string, args accessor.OpRead) (io.ReadCloser, error) {
	if err := m.next(accessor.OperationRead, path); err != nil {
		return nil, err
	}
	m.mu.Lock()
	data := m.objects[path]
	m.mu.Unlock()
	offset, length, err := args.Range.Clamp(int64(len(data)))
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data[offset : offset+length])), nil
}

func (m *mockAccessor) Write(ctx context.Context, path string, args accessor.OpWrite, body io.Reader) (*accessor.Metadata, error) {
	if err := m.next(accessor.OperationWrite, path); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.objects[path] = data
	m.mu.Unlock()
	md := accessor.NewMetadata(accessor.ModeFile).WithContentLength(int64(len(data)))
	if args.ContentType != "" {
		md = md.WithContentType(args.ContentType)
	}
	return md, nil
}

func (m *mockAccessor) Stat(ctx context.Context, path string, args accessor.OpStat) (*accessor.Metadata, error) {
	if err := m.next(accessor.OperationStat, path); err != nil {
		return nil, err
	}
	m.mu.Lock()
	data, ok := m.objects[path]
	m.mu.Unlock()
	if !ok {
		return accessor.NewMetadata(accessor.ModeFile), nil
	}
	return accessor.NewMetadata(accessor.ModeFile).WithContentLength(int64(len(data))), nil
}

func (m *mockAccessor) Delete(ctx context.Context, path string, args accessor.OpDelete) error {
	if err := m.next(accessor.OperationDelete, path); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.objects, path)
	m.mu.Unlock()
	return nil
}

func (m *mockAccessor) List(ctx context.Context, path string, args accessor.OpList) (*accessor.ListPage, error) {
	if err := m.next(accessor.OperationList, path); err != nil {
		return nil, err
	}
	return &accessor.ListPage{}, nil
}

func (m *mockAccessor) Copy(ctx context.Context, src, dst string, args accessor.OpCopy) error {
	return m.next(accessor.OperationCopy, src)
}

func (m *mockAccessor) Rename(ctx context.Context, src, dst string, args accessor.OpRename) error {
	return m.next(accessor.OperationRename, src)
}

func (m *mockAccessor) Presign(ctx context.Context, path string, args accessor.OpPresign) (*accessor.PresignedRequest, error) {
	if err := m.next(accessor.OperationPresign, path); err != nil {
		return nil, err
	}
	return &accessor.PresignedRequest{Method: "GET", URL: "https://mock.invalid/" + path}, nil
}
