package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"outcode-retriever/models"
)

// MemoryStore keeps properties in process. It backs dry runs and tests.
type MemoryStore struct {
	mu    sync.Mutex
	docs  map[models.ListingKind][]models.Property
	batch int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[models.ListingKind][]models.Property)}
}

// InsertMany stores a copy of every property and returns fresh ids.
func (s *MemoryStore) InsertMany(_ context.Context, kind models.ListingKind, props []*models.Property) ([]string, error) {
	if len(props) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(props))
	for _, p := range props {
		s.docs[kind] = append(s.docs[kind], *p)
		ids = append(ids, uuid.NewString())
	}
	s.batch++
	return ids, nil
}

// All returns copies of the stored properties of kind in insertion order.
func (s *MemoryStore) All(kind models.ListingKind) []models.Property {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Property, len(s.docs[kind]))
	copy(out, s.docs[kind])
	return out
}

func (s *MemoryStore) Count(kind models.ListingKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs[kind])
}

// Batches returns how many InsertMany calls stored at least one property.
func (s *MemoryStore) Batches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batch
}

func (s *MemoryStore) Close(context.Context) error { return nil }
