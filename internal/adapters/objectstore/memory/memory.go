// Package memory is an in-process objectstore.Store with real generation
// semantics. It backs tests and the memory storage backend.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/callledger/internal/adapters/objectstore"
)

type object struct {
	data        []byte
	contentType string
	generation  int64
}

// Store keeps objects in a map guarded by a mutex.
type Store struct {
	mu      sync.Mutex
	objects map[string]object
	nextGen int64

	// beforeWrite runs ahead of every conditional write without the lock held.
	beforeWrite func(bucket, path string)
}

// Option configures a Store.
type Option func(*Store)

// WithBeforeWrite installs a hook that runs before each WriteIf. Tests use
// it to slip a competing write in between a read and its write.
func WithBeforeWrite(fn func(bucket, path string)) Option {
	return func(s *Store) { s.beforeWrite = fn }
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{objects: make(map[string]object)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func key(bucket, path string) string { return bucket + "/" + path }

// Read implements objectstore.Store.
func (s *Store) Read(ctx context.Context, bucket, path string) ([]byte, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.objects[key(bucket, path)]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", objectstore.ErrNotExist, key(bucket, path))
	}
	return append([]byte(nil), o.data...), o.generation, nil
}

// WriteIf implements objectstore.Store.
func (s *Store) WriteIf(ctx context.Context, bucket, path string, data []byte, contentType string, generation int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.beforeWrite != nil {
		s.beforeWrite(bucket, path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(bucket, path)
	current := s.objects[k].generation
	if current != generation {
		return 0, fmt.Errorf("%w: %s at %d, want %d", objectstore.ErrPrecondition, k, current, generation)
	}
	s.nextGen++
	s.objects[k] = object{
		data:        append([]byte(nil), data...),
		contentType: contentType,
		generation:  s.nextGen,
	}
	return s.nextGen, nil
}

// Put writes unconditionally. Used to seed fixtures.
func (s *Store) Put(bucket, path string, data []byte) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextGen++
	s.objects[key(bucket, path)] = object{data: append([]byte(nil), data...), generation: s.nextGen}
	return s.nextGen
}

// Len returns the number of stored objects.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
