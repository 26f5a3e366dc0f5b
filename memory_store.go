package flowengine

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of all three engine stores.
// Useful for embedding and tests; records do not survive the process.
type MemoryStore struct {
	mutex      sync.RWMutex
	executions map[string]*ExecutionRecord
	nodeExecs  map[string]*NodeExecutionRecord
	nodeOrder  []string
	callbacks  map[string]*AsyncCallbackRecord
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		executions: map[string]*ExecutionRecord{},
		nodeExecs:  map[string]*NodeExecutionRecord{},
		callbacks:  map[string]*AsyncCallbackRecord{},
	}
}

func (s *MemoryStore) SaveExecution(ctx context.Context, record *ExecutionRecord) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	copied := *record
	if existing, ok := s.executions[record.ID]; ok {
		copied.CreatedAt = existing.CreatedAt
	} else if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}
	s.executions[record.ID] = &copied
	return nil
}

func (s *MemoryStore) LoadExecution(ctx context.Context, executionID string) (*ExecutionRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	record, ok := s.executions[executionID]
	if !ok {
		return nil, ErrExecutionNotFound
	}
	copied := *record
	return &copied, nil
}

func (s *MemoryStore) InsertNodeExecution(ctx context.Context, record *NodeExecutionRecord) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	copied := *record
	s.nodeExecs[record.ID] = &copied
	s.nodeOrder = append(s.nodeOrder, record.ID)
	return nil
}

func (s *MemoryStore) UpdateNodeExecution(ctx context.Context, id string, status NodeExecutionStatus, update NodeExecutionUpdate) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	record, ok := s.nodeExecs[id]
	if !ok {
		return ErrExecutionNotFound
	}
	record.Status = status
	if update.Output != nil {
		record.Output = update.Output
	}
	if update.Error != "" {
		record.Error = update.Error
	}
	if update.ExecutionData != nil {
		record.ExecutionData = update.ExecutionData
	}
	switch status {
	case NodeExecutionStatusCompleted, NodeExecutionStatusFailed, NodeExecutionStatusSkipped:
		record.FinishedAt = time.Now()
	}
	return nil
}

func (s *MemoryStore) ListNodeExecutions(ctx context.Context, executionID string) ([]*NodeExecutionRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var records []*NodeExecutionRecord
	for _, id := range s.nodeOrder {
		record := s.nodeExecs[id]
		if record.ExecutionID == executionID {
			copied := *record
			records = append(records, &copied)
		}
	}
	return records, nil
}

func (s *MemoryStore) InsertCallback(ctx context.Context, record *AsyncCallbackRecord) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	copied := *record
	s.callbacks[record.CallbackKey] = &copied
	return nil
}

func (s *MemoryStore) FindCallback(ctx context.Context, callbackKey string) (*AsyncCallbackRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	record, ok := s.callbacks[callbackKey]
	if !ok {
		return nil, nil
	}
	copied := *record
	return &copied, nil
}

func (s *MemoryStore) UpdateCallbackStatus(ctx context.Context, callbackKey string, status CallbackStatus) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	record, ok := s.callbacks[callbackKey]
	if !ok {
		return ErrCallbackNotFound
	}
	record.Status = status
	return nil
}

func (s *MemoryStore) DeleteExpiredCallbacks(ctx context.Context, now time.Time) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var deleted int
	for key, record := range s.callbacks {
		if record.Status == CallbackStatusWaiting && record.Expired(now) {
			delete(s.callbacks, key)
			deleted++
		}
	}
	return deleted, nil
}
