package poller_test

import (
	"context"
	"sync"
	"time"

	"foerderbande/models"
	"foerderbande/poller"
)

type fakeStore struct {
	mu      sync.Mutex
	sources []models.Source
	entries map[string]models.FeedEntry
	calls   map[string]models.FundingCall
	polled  []int64
	failed  map[int64]string
	nextID  int64
}

func newFakeStore(sources ...models.Source) *fakeStore {
	return &fakeStore{
		sources: sources,
		entries: map[string]models.FeedEntry{},
		calls:   map[string]models.FundingCall{},
		failed:  map[int64]string{},
	}
}

func (s *fakeStore) ListActiveSources(_ context.Context) ([]models.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var active []models.Source
	for _, source := range s.sources {
		if source.IsActive {
			active = append(active, source)
		}
	}
	return active, nil
}

func (s *fakeStore) MarkSourcePolled(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polled = append(s.polled, id)
	delete(s.failed, id)
	return nil
}

func (s *fakeStore) MarkSourceFailed(_ context.Context, id int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[id] = reason
	return nil
}

func (s *fakeStore) UpsertFeedEntry(_ context.Context, entry models.FeedEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.entries[entry.ID]
	s.entries[entry.ID] = entry
	return !exists, nil
}

func (s *fakeStore) UpsertFundingCall(_ context.Context, call models.FundingCall) (models.FundingCall, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if existing, ok := s.calls[call.URL]; ok {
		existing.Title = call.Title
		if call.Description != nil {
			existing.Description = call.Description
		}
		for k, v := range call.ExtraData {
			existing.ExtraData[k] = v
		}
		existing.UpdatedAt = now
		s.calls[call.URL] = existing
		return existing, false, nil
	}

	s.nextID++
	call.ID = s.nextID
	call.CreatedAt = now
	call.UpdatedAt = now
	s.calls[call.URL] = call
	return call, true, nil
}

func (s *fakeStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

var _ poller.Store = (*fakeStore)(nil)

func testConfig() poller.Config {
	cfg := poller.DefaultConfig()
	cfg.Workers = 2
	cfg.Timeout = 5 * time.Second
	cfg.RequestsPerSecond = 1000
	cfg.BurstCapacity = 100
	cfg.MaxRetries = 2
	cfg.RetryInitialInterval = time.Millisecond
	cfg.RetryMaxInterval = 5 * time.Millisecond
	return cfg
}
