// Package sessionstore provides SessionStore backends for per-browser document sessions.
package sessionstore

import (
	"context"
	"sync"

	"ContractDesk/internal/domain"
	"ContractDesk/internal/ports"
)

// Memory keeps a session in process memory.
type Memory struct {
	mu      sync.RWMutex
	session domain.Session
}

var _ ports.SessionStore = (*Memory)(nil)

// NewMemory builds an empty in-memory session.
func NewMemory() *Memory {
	return &Memory{}
}

// Get returns a copy of the latest state.
func (m *Memory) Get(ctx context.Context) (domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.Clone(), nil
}

// SetUploadedArtifact replaces the selected file; nil detaches it.
func (m *Memory) SetUploadedArtifact(ctx context.Context, artifact *domain.UploadedArtifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.UploadedArtifact = artifact.Clone()
	return nil
}

// SetActiveDocument replaces the active document; nil clears it.
func (m *Memory) SetActiveDocument(ctx context.Context, record *domain.DocumentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.ActiveDocument = record.Clone()
	return nil
}

// Clear empties the session.
func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = domain.Session{}
	return nil
}

// MemoryFactory hands out a fresh in-memory store per browser session.
type MemoryFactory struct{}

var _ ports.SessionStoreFactory = MemoryFactory{}

// Open returns a new empty store; callers keep it for the session's lifetime.
func (MemoryFactory) Open(string) ports.SessionStore {
	return NewMemory()
}
