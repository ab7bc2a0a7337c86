package inmem

import (
	"sort"
	"sync"
	"time"

	"github.com/relaypoint/relaypoint/model"
	"github.com/relaypoint/relaypoint/persistence"
)

var _ persistence.Storage = new(InMemStorage)

// InMemStorage keeps everything under one mutex, which makes the paired
// run-write+outbox-write operations trivially atomic. Used by tests and
// single-process development runs.
type InMemStorage struct {
	mu     sync.Mutex
	relays map[string]*model.Relay
	runs   map[string]*model.Run
	outbox map[string]*model.OutboxEntry

	// FailWrites simulates storage-layer outages in tests.
	FailWrites bool
}

func NewInMemStorage() *InMemStorage {
	return &InMemStorage{
		relays: make(map[string]*model.Relay),
		runs:   make(map[string]*model.Run),
		outbox: make(map[string]*model.OutboxEntry),
	}
}

func (s *InMemStorage) Relays() persistence.RelayDao {
	return (*inMemRelayDao)(s)
}

func (s *InMemStorage) Runs() persistence.RunDao {
	return (*inMemRunDao)(s)
}

func (s *InMemStorage) Outbox() persistence.OutboxDao {
	return (*inMemOutboxDao)(s)
}

func (s *InMemStorage) CreateRunAndScheduleStart(run *model.Run, entry *model.OutboxEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites {
		return persistence.StorageLayerError{Message: "storage unavailable"}
	}
	runCopy := *run
	s.runs[run.Id] = &runCopy
	entryCopy := *entry
	s.outbox[entry.Id] = &entryCopy
	return nil
}

func (s *InMemStorage) CompleteStage(runId string, entry model.ExecutionHistoryEntry, next *model.OutboxEntry, final *model.RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites {
		return persistence.StorageLayerError{Message: "storage unavailable"}
	}
	run, ok := s.runs[runId]
	if !ok {
		return persistence.NotFoundError{Kind: "run", Id: runId}
	}
	run.ExecutionHistory = append(run.ExecutionHistory, entry)
	if next != nil {
		run.CurrentStage = next.Stage
		entryCopy := *next
		s.outbox[next.Id] = &entryCopy
	}
	if final != nil && !run.Status.Terminal() {
		now := time.Now()
		run.Status = *final
		run.CompletedAt = &now
		if *final == model.RUN_STATUS_FAILED && len(entry.Error) != 0 {
			run.ErrorMessage = entry.Error
		}
	}
	return nil
}

type inMemRelayDao InMemStorage

func (dao *inMemRelayDao) Save(relay *model.Relay) error {
	dao.mu.Lock()
	defer dao.mu.Unlock()
	relayCopy := *relay
	dao.relays[relay.Id] = &relayCopy
	return nil
}

func (dao *inMemRelayDao) Get(id string) (*model.Relay, error) {
	dao.mu.Lock()
	defer dao.mu.Unlock()
	relay, ok := dao.relays[id]
	if !ok {
		return nil, persistence.NotFoundError{Kind: "relay", Id: id}
	}
	relayCopy := *relay
	return &relayCopy, nil
}

func (dao *inMemRelayDao) List(userId string) ([]*model.Relay, error) {
	dao.mu.Lock()
	defer dao.mu.Unlock()
	relays := make([]*model.Relay, 0, len(dao.relays))
	for _, relay := range dao.relays {
		if len(userId) == 0 || relay.UserId == userId {
			relayCopy := *relay
			relays = append(relays, &relayCopy)
		}
	}
	sort.Slice(relays, func(i, j int) bool {
		return relays[i].CreatedAt.After(relays[j].CreatedAt)
	})
	return relays, nil
}

func (dao *inMemRelayDao) RecordTrigger(id string, at time.Time) error {
	dao.mu.Lock()
	defer dao.mu.Unlock()
	relay, ok := dao.relays[id]
	if !ok {
		return persistence.NotFoundError{Kind: "relay", Id: id}
	}
	relay.RunCount++
	relay.LastRunAt = &at
	return nil
}

type inMemRunDao InMemStorage

func (dao *inMemRunDao) Get(id string) (*model.Run, error) {
	dao.mu.Lock()
	defer dao.mu.Unlock()
	run, ok := dao.runs[id]
	if !ok {
		return nil, persistence.NotFoundError{Kind: "run", Id: id}
	}
	runCopy := *run
	runCopy.ExecutionHistory = append([]model.ExecutionHistoryEntry(nil), run.ExecutionHistory...)
	return &runCopy, nil
}

func (dao *inMemRunDao) MarkStarted(id string, at time.Time) error {
	dao.mu.Lock()
	defer dao.mu.Unlock()
	if dao.FailWrites {
		return persistence.StorageLayerError{Message: "storage unavailable"}
	}
	run, ok := dao.runs[id]
	if !ok {
		return persistence.NotFoundError{Kind: "run", Id: id}
	}
	if run.Status.Terminal() {
		return nil
	}
	run.Status = model.RUN_STATUS_RUNNING
	run.StartedAt = &at
	return nil
}

func (dao *inMemRunDao) MarkTerminal(id string, status model.RunStatus, errorMessage string, at time.Time) error {
	dao.mu.Lock()
	defer dao.mu.Unlock()
	if dao.FailWrites {
		return persistence.StorageLayerError{Message: "storage unavailable"}
	}
	run, ok := dao.runs[id]
	if !ok {
		return persistence.NotFoundError{Kind: "run", Id: id}
	}
	if run.Status.Terminal() {
		return nil
	}
	run.Status = status
	run.CompletedAt = &at
	if len(errorMessage) != 0 {
		run.ErrorMessage = errorMessage
	}
	return nil
}

type inMemOutboxDao InMemStorage

func (dao *inMemOutboxDao) PollPending(batchSize int) ([]*model.OutboxEntry, error) {
	dao.mu.Lock()
	defer dao.mu.Unlock()
	var entries []*model.OutboxEntry
	for _, entry := range dao.outbox {
		if entry.Status == model.OUTBOX_STATUS_PENDING {
			entryCopy := *entry
			entries = append(entries, &entryCopy)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	if len(entries) > batchSize {
		entries = entries[:batchSize]
	}
	return entries, nil
}

func (dao *inMemOutboxDao) MarkProcessing(entries []*model.OutboxEntry) error {
	return dao.setStatus(entries, model.OUTBOX_STATUS_PROCESSING)
}

func (dao *inMemOutboxDao) MarkPending(entries []*model.OutboxEntry) error {
	return dao.setStatus(entries, model.OUTBOX_STATUS_PENDING)
}

func (dao *inMemOutboxDao) setStatus(entries []*model.OutboxEntry, status model.OutboxStatus) error {
	dao.mu.Lock()
	defer dao.mu.Unlock()
	var claimedAt *time.Time
	if status == model.OUTBOX_STATUS_PROCESSING {
		now := time.Now()
		claimedAt = &now
	}
	for _, entry := range entries {
		if stored, ok := dao.outbox[entry.Id]; ok {
			stored.Status = status
			stored.ClaimedAt = claimedAt
		}
		entry.Status = status
		entry.ClaimedAt = claimedAt
	}
	return nil
}

func (dao *inMemOutboxDao) RecoverStale(olderThan time.Duration) (int, error) {
	dao.mu.Lock()
	defer dao.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	recovered := 0
	for _, entry := range dao.outbox {
		if entry.Status != model.OUTBOX_STATUS_PROCESSING {
			continue
		}
		if entry.ClaimedAt != nil && entry.ClaimedAt.After(cutoff) {
			continue
		}
		entry.Status = model.OUTBOX_STATUS_PENDING
		entry.ClaimedAt = nil
		recovered++
	}
	return recovered, nil
}

func (dao *inMemOutboxDao) Delete(entries []*model.OutboxEntry) error {
	dao.mu.Lock()
	defer dao.mu.Unlock()
	for _, entry := range entries {
		delete(dao.outbox, entry.Id)
	}
	return nil
}
