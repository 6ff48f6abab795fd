package blob

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryStore keeps objects in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]memoryObject
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: map[string]memoryObject{}}
}

func (m *MemoryStore) Backend() string { return "memory" }

func (m *MemoryStore) Put(ctx context.Context, data []byte, contentType string) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}
	ref := uuid.NewString()
	m.mu.Lock()
	m.objects[ref] = memoryObject{data: data, contentType: contentType}
	m.mu.Unlock()
	return Handle{Ref: ref, ContentType: contentType, Size: len(data)}, nil
}

func (m *MemoryStore) Get(ctx context.Context, ref string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[ref]
	if !ok {
		return nil, ErrNotFound
	}
	return obj.data, nil
}

func (m *MemoryStore) Release(ctx context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[ref]; !ok {
		return ErrNotFound
	}
	delete(m.objects, ref)
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

// Len returns the number of live objects.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
