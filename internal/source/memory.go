package source

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-memory source. It is safe for concurrent use.
type Memory struct {
	files sync.Map // key -> []byte
}

// NewMemory returns a Memory source holding a copy of files.
func NewMemory(files map[string][]byte) *Memory {
	m := &Memory{}
	for k, v := range files {
		m.Put(k, v)
	}
	return m
}

// Put stores a copy of data under key, replacing any previous value.
func (m *Memory) Put(key string, data []byte) {
	m.files.Store(key, clone(data))
}

// Delete removes key.
func (m *Memory) Delete(key string) {
	m.files.Delete(key)
}

// Keys returns the stored keys in sorted order.
func (m *Memory) Keys() []string {
	var keys []string
	m.files.Range(func(k, _ any) bool {
		keys = append(keys, k.(string))
		return true
	})
	sort.Strings(keys)
	return keys
}

// Fetch returns a copy of the bytes stored under key.
func (m *Memory) Fetch(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, ok := m.files.Load(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return clone(v.([]byte)), nil
}

// clone copies b into a non-nil slice, so an empty resource stays a value.
func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
