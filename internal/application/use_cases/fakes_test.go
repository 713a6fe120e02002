//go:build !integration

package use_cases

import (
	"context"
	"sync"

	"karte/internal/application/dto"
	portsout "karte/internal/application/ports/out"
	"karte/internal/domain/entities"
	apperrors "karte/internal/shared_kernel/errors"
)

type fakeEventStore struct {
	mu      sync.Mutex
	records []entities.EventRecord
	nextID  int64
	putErr  *apperrors.AppError
	// failDeletes makes that many Delete calls fail before they succeed.
	failDeletes int
}

func newFakeEventStore(records ...entities.EventRecord) *fakeEventStore {
	store := &fakeEventStore{}
	for _, record := range records {
		store.nextID++
		record.ID = store.nextID
		store.records = append(store.records, record)
	}
	return store
}

func (s *fakeEventStore) Put(_ context.Context, record entities.EventRecord) (int64, *apperrors.AppError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return portsout.FailureID, s.putErr
	}
	s.nextID++
	record.ID = s.nextID
	s.records = append(s.records, record)
	return record.ID, nil
}

func (s *fakeEventStore) Read(_ context.Context, conditions ...portsout.Condition) ([]entities.EventRecord, *apperrors.AppError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]entities.EventRecord, 0, len(s.records))
	for _, record := range s.records {
		if matchesConditions(record, conditions) {
			out = append(out, record)
		}
	}
	return out, nil
}

func (s *fakeEventStore) Update(_ context.Context, record entities.EventRecord) (int64, *apperrors.AppError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == record.ID {
			s.records[i] = record
			return 1, nil
		}
	}
	return 0, nil
}

func (s *fakeEventStore) Delete(_ context.Context, record entities.EventRecord) *apperrors.AppError {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDeletes > 0 {
		s.failDeletes--
		return apperrors.NewInternal("DATASTORE_DELETE_FAILED", "disk error", nil)
	}
	for i := range s.records {
		if s.records[i].ID == record.ID {
			s.records = append(s.records[:i:i], s.records[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *fakeEventStore) Transaction(_ context.Context, fn func(tx portsout.Persister[entities.EventRecord]) *apperrors.AppError) *apperrors.AppError {
	s.mu.Lock()
	snapshot := append([]entities.EventRecord(nil), s.records...)
	nextID := s.nextID
	s.mu.Unlock()

	if appErr := fn(s); appErr != nil {
		s.mu.Lock()
		s.records = snapshot
		s.nextID = nextID
		s.mu.Unlock()
		return appErr
	}
	return nil
}

func (s *fakeEventStore) DeleteAll(_ context.Context) *apperrors.AppError {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	return nil
}

func (s *fakeEventStore) Close() error {
	return nil
}

func (s *fakeEventStore) snapshot() []entities.EventRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entities.EventRecord(nil), s.records...)
}

func matchesConditions(record entities.EventRecord, conditions []portsout.Condition) bool {
	for _, condition := range conditions {
		var actual any
		switch condition.Column {
		case portsout.EventRecordColumnVisitorID:
			actual = record.VisitorID
		case portsout.EventRecordColumnState:
			actual = int64(record.State)
		case portsout.EventRecordColumnRetry:
			actual = int64(record.Retry)
		}
		expected := condition.Value
		switch typed := expected.(type) {
		case entities.EventRecordState:
			expected = int64(typed)
		case int:
			expected = int64(typed)
		}
		if (actual == expected) != (condition.Operator == portsout.OperatorEqual) {
			return false
		}
	}
	return true
}

type fakeTrackGateway struct {
	mu        sync.Mutex
	requests  []dto.TrackRequest
	responses []dto.TrackResponse
	errs      []*apperrors.AppError
	panics    bool
}

func (g *fakeTrackGateway) Send(_ context.Context, request dto.TrackRequest) (dto.TrackResponse, *apperrors.AppError) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.panics {
		panic("transport exploded")
	}

	index := len(g.requests)
	g.requests = append(g.requests, request)

	if len(g.errs) > 0 {
		if appErr := g.errs[min(index, len(g.errs)-1)]; appErr != nil {
			return dto.TrackResponse{}, appErr
		}
	}
	if len(g.responses) == 0 {
		return dto.TrackResponse{StatusCode: 200}, nil
	}
	return g.responses[min(index, len(g.responses)-1)], nil
}

func (g *fakeTrackGateway) sent() []dto.TrackRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]dto.TrackRequest(nil), g.requests...)
}

type fakeConnectivity struct {
	mu     sync.Mutex
	online bool
}

func (c *fakeConnectivity) IsOnline() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

func (c *fakeConnectivity) Subscribe(func(bool)) func() {
	return func() {}
}

type fakePipeline struct {
	mu          sync.Mutex
	intercepted int
	received    []dto.TrackRequest
}

func (p *fakePipeline) Intercept(request dto.TrackRequest) dto.TrackRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.intercepted++
	request.Headers["X-Intercepted"] = "true"
	return request
}

func (p *fakePipeline) Receive(_ dto.TrackResponse, request dto.TrackRequest) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.received = append(p.received, request)
}

func (p *fakePipeline) receivedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.received)
}
