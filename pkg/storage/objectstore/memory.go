package objectstore

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Object is a stored blob and its content type.
type Object struct {
	Data        []byte
	ContentType string
}

// FaultFunc decides whether an operation fails. Returning nil lets it proceed.
type FaultFunc func(op, bucket, key string) error

// Memory is an in-process Client used by the "memory" provider and tests.
type Memory struct {
	mu      sync.RWMutex
	buckets map[string]map[string]Object
	fault   FaultFunc
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{buckets: map[string]map[string]Object{}}
}

// SetFault installs a hook consulted before every operation.
func (m *Memory) SetFault(fn FaultFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fault = fn
}

// Object returns a stored object without consulting the fault hook.
func (m *Memory) Object(bucket, key string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.buckets[bucket][key]
	return obj, ok
}

// Keys returns every key in bucket, sorted.
func (m *Memory) Keys(bucket string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.buckets[bucket]))
	for k := range m.buckets[bucket] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *Memory) check(op, bucket, key string) error {
	m.mu.RLock()
	fault := m.fault
	m.mu.RUnlock()
	if fault == nil {
		return nil
	}
	if err := fault(op, bucket, key); err != nil {
		return newError(op, bucket, key, ErrUnavailable, err)
	}
	return nil
}

func (m *Memory) Get(_ context.Context, bucket, key string) ([]byte, error) {
	if err := m.check("get", bucket, key); err != nil {
		return nil, err
	}
	obj, ok := m.Object(bucket, key)
	if !ok {
		return nil, newError("get", bucket, key, ErrNotFound, nil)
	}
	out := make([]byte, len(obj.Data))
	copy(out, obj.Data)
	return out, nil
}

func (m *Memory) Put(_ context.Context, bucket, key string, data []byte, contentType string) error {
	if err := m.check("put", bucket, key); err != nil {
		return err
	}
	stored := make([]byte, len(data))
	copy(stored, data)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buckets[bucket] == nil {
		m.buckets[bucket] = map[string]Object{}
	}
	m.buckets[bucket][key] = Object{Data: stored, ContentType: contentType}
	return nil
}

func (m *Memory) Copy(_ context.Context, bucket, srcKey, dstKey string) error {
	if err := m.check("copy", bucket, srcKey); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.buckets[bucket][srcKey]
	if !ok {
		return newError("copy", bucket, srcKey, ErrNotFound, nil)
	}
	m.buckets[bucket][dstKey] = obj
	return nil
}

// Delete is idempotent, matching S3 semantics for missing keys.
func (m *Memory) Delete(_ context.Context, bucket, key string) error {
	if err := m.check("delete", bucket, key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buckets[bucket], key)
	return nil
}

func (m *Memory) List(_ context.Context, bucket, prefix string) ([]string, error) {
	if err := m.check("list", bucket, prefix); err != nil {
		return nil, err
	}
	keys := []string{}
	for _, k := range m.Keys(bucket) {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *Memory) Close() error {
	return nil
}
