// Package session stores conversation history. The in-memory service is the
// only implementation; the interface exists so a persistent store can replace
// it without touching the conversation layer.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stratushealth/concierge/pkg/protocol"
)

// Metadata describes a session without its messages.
type Metadata struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Service manages session message history.
type Service interface {
	// AppendMessage adds a message to a session, creating it if needed.
	AppendMessage(sessionID string, message *protocol.Message) error

	// AppendMessages adds several messages atomically.
	AppendMessages(sessionID string, messages []*protocol.Message) error

	// GetMessages returns the most recent messages. A zero limit returns all.
	GetMessages(sessionID string, limit int) ([]*protocol.Message, error)

	// GetMessageCount returns how many messages a session holds.
	GetMessageCount(sessionID string) (int, error)

	// GetOrCreateMetadata returns session metadata, creating the session if
	// it does not exist yet.
	GetOrCreateMetadata(sessionID string) (*Metadata, error)

	// DeleteSession removes a session and its history.
	DeleteSession(sessionID string) error

	// SessionCount returns the number of active sessions.
	SessionCount() int
}

// NewID returns a fresh session identifier.
func NewID() string {
	return uuid.NewString()
}

type sessionData struct {
	messages []*protocol.Message
	metadata *Metadata
}

// InMemoryService keeps sessions in process memory. History does not survive
// a restart.
type InMemoryService struct {
	sessions    map[string]*sessionData
	maxMessages int
	mu          sync.RWMutex
}

// NewInMemoryService creates the store. maxMessages bounds how many messages
// each session retains; older ones are dropped on append. Zero keeps
// everything.
func NewInMemoryService(maxMessages int) *InMemoryService {
	return &InMemoryService{
		sessions:    make(map[string]*sessionData),
		maxMessages: maxMessages,
	}
}

// getOrCreate must be called with the write lock held.
func (s *InMemoryService) getOrCreate(sessionID string) *sessionData {
	data, exists := s.sessions[sessionID]
	if !exists {
		now := time.Now()
		data = &sessionData{
			messages: make([]*protocol.Message, 0),
			metadata: &Metadata{
				ID:        sessionID,
				CreatedAt: now,
				UpdatedAt: now,
			},
		}
		s.sessions[sessionID] = data
	}
	return data
}

func (s *InMemoryService) AppendMessage(sessionID string, message *protocol.Message) error {
	if message == nil {
		return fmt.Errorf("message cannot be nil")
	}
	return s.AppendMessages(sessionID, []*protocol.Message{message})
}

func (s *InMemoryService) AppendMessages(sessionID string, messages []*protocol.Message) error {
	if sessionID == "" {
		return fmt.Errorf("sessionID cannot be empty")
	}
	if len(messages) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data := s.getOrCreate(sessionID)
	data.messages = append(data.messages, messages...)
	if s.maxMessages > 0 && len(data.messages) > s.maxMessages {
		// Copy so the dropped prefix does not pin the old backing array.
		kept := make([]*protocol.Message, s.maxMessages)
		copy(kept, data.messages[len(data.messages)-s.maxMessages:])
		data.messages = kept
	}
	data.metadata.UpdatedAt = time.Now()
	return nil
}

func (s *InMemoryService) GetMessages(sessionID string, limit int) ([]*protocol.Message, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("sessionID cannot be empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, exists := s.sessions[sessionID]
	if !exists {
		return []*protocol.Message{}, nil
	}

	messages := data.messages
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}

	out := make([]*protocol.Message, len(messages))
	copy(out, messages)
	return out, nil
}

func (s *InMemoryService) GetMessageCount(sessionID string) (int, error) {
	if sessionID == "" {
		return 0, fmt.Errorf("sessionID cannot be empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, exists := s.sessions[sessionID]
	if !exists {
		return 0, nil
	}
	return len(data.messages), nil
}

func (s *InMemoryService) GetOrCreateMetadata(sessionID string) (*Metadata, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("sessionID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.getOrCreate(sessionID).metadata, nil
}

func (s *InMemoryService) DeleteSession(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("sessionID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

func (s *InMemoryService) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions)
}

var _ Service = (*InMemoryService)(nil)
