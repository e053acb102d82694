package store

import (
	"context"

	"github.com/calyra/docdex/internal/db"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	jsonSetFn      func(ctx context.Context, key, path string, data []byte) error
	jsonGetFn      func(ctx context.Context, key string, paths ...string) ([]byte, error)
	jsonGetMultiFn func(ctx context.Context, keys []string, path string) ([][]byte, error)
	delFn          func(ctx context.Context, key string) error
	existsFn       func(ctx context.Context, key string) (bool, error)
	scanFn         func(ctx context.Context, pattern string) ([]string, error)
}

func (m *mockStore) JSONSet(ctx context.Context, key, path string, data []byte) error {
	if m.jsonSetFn != nil {
		return m.jsonSetFn(ctx, key, path, data)
	}
	return nil
}

func (m *mockStore) JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error) {
	if m.jsonGetFn != nil {
		return m.jsonGetFn(ctx, key, paths...)
	}
	return nil, nil
}

func (m *mockStore) JSONGetMulti(ctx context.Context, keys []string, path string) ([][]byte, error) {
	if m.jsonGetMultiFn != nil {
		return m.jsonGetMultiFn(ctx, keys, path)
	}
	return nil, nil
}

func (m *mockStore) Del(ctx context.Context, key string) error {
	if m.delFn != nil {
		return m.delFn(ctx, key)
	}
	return nil
}

func (m *mockStore) Exists(ctx context.Context, key string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, key)
	}
	return false, nil
}

func (m *mockStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	if m.scanFn != nil {
		return m.scanFn(ctx, pattern)
	}
	return nil, nil
}

// memStore is an in-memory JSON store for round-trip tests.
type memStore struct {
	mockStore
	data map[string][]byte
}

func newMemStore() *memStore {
	m := &memStore{data: make(map[string][]byte)}
	m.jsonSetFn = func(_ context.Context, key, _ string, data []byte) error {
		m.data[key] = append([]byte(nil), data...)
		return nil
	}
	m.jsonGetFn = func(_ context.Context, key string, _ ...string) ([]byte, error) {
		raw, ok := m.data[key]
		if !ok {
			return nil, db.ErrKeyNotFound
		}
		return wrapPathArray(raw), nil
	}
	m.jsonGetMultiFn = func(_ context.Context, keys []string, _ string) ([][]byte, error) {
		out := make([][]byte, len(keys))
		for i, k := range keys {
			if raw, ok := m.data[k]; ok {
				out[i] = wrapPathArray(raw)
			}
		}
		return out, nil
	}
	m.existsFn = func(_ context.Context, key string) (bool, error) {
		_, ok := m.data[key]
		return ok, nil
	}
	m.delFn = func(_ context.Context, key string) error {
		delete(m.data, key)
		return nil
	}
	m.scanFn = func(_ context.Context, _ string) ([]string, error) {
		keys := make([]string, 0, len(m.data))
		for k := range m.data {
			keys = append(keys, k)
		}
		return keys, nil
	}
	return m
}

// wrapPathArray mimics the JSONPath "$" response shape.
func wrapPathArray(raw []byte) []byte {
	out := make([]byte, 0, len(raw)+2)
	out = append(out, '[')
	out = append(out, raw...)
	return append(out, ']')
}
