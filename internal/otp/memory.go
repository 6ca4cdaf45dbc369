package otp

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"
)

// MemoryStore is a process-local ChallengeStore for single-instance and
// test deployments.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]Challenge
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[string]Challenge{}}
}

func memKey(documentID, channel string) string { return documentID + "\x00" + channel }

func (m *MemoryStore) Put(_ context.Context, ch Challenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[memKey(ch.DocumentID, ch.Channel)] = ch
	return nil
}

func (m *MemoryStore) Attempt(_ context.Context, documentID, channel, codeHash string, now time.Time) (AttemptOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memKey(documentID, channel)
	ch, ok := m.items[k]
	if !ok {
		return AttemptNoChallenge, nil
	}
	match := subtle.ConstantTimeCompare([]byte(ch.CodeHash), []byte(codeHash)) == 1
	if ch.ConsumedAt != nil {
		if match {
			return AttemptAlreadyConsumed, nil
		}
		return AttemptNoChallenge, nil
	}
	if ch.RemainingAttempts <= 0 || !now.Before(ch.ExpiresAt) {
		return AttemptNoChallenge, nil
	}
	if match {
		consumed := now
		ch.ConsumedAt = &consumed
		m.items[k] = ch
		return AttemptConsumed, nil
	}
	ch.RemainingAttempts--
	m.items[k] = ch
	return AttemptMismatch, nil
}

func (m *MemoryStore) Purge(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, ch := range m.items {
		if ch.ExpiresAt.Before(before) || ch.ConsumedAt != nil {
			delete(m.items, k)
			n++
		}
	}
	return n, nil
}
