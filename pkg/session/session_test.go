package session

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratushealth/concierge/pkg/protocol"
)

func TestAppendAndGetMessages(t *testing.T) {
	service := NewInMemoryService(0)

	require.NoError(t, service.AppendMessage("s1", protocol.UserMessage("hello")))
	require.NoError(t, service.AppendMessages("s1", []*protocol.Message{
		protocol.AssistantMessage("hi there"),
		protocol.UserMessage("lookup member M1001"),
	}))

	messages, err := service.GetMessages("s1", 0)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, protocol.RoleUser, messages[0].Role)
	assert.Equal(t, "lookup member M1001", messages[2].Content)

	count, err := service.GetMessageCount("s1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestGetMessagesAppliesLimit(t *testing.T) {
	service := NewInMemoryService(0)
	for i := 0; i < 20; i++ {
		require.NoError(t, service.AppendMessage("s1", protocol.UserMessage(fmt.Sprintf("turn %d", i))))
	}

	messages, err := service.GetMessages("s1", 10)
	require.NoError(t, err)
	require.Len(t, messages, 10)
	assert.Equal(t, "turn 10", messages[0].Content)
	assert.Equal(t, "turn 19", messages[9].Content)
}

func TestAppendDropsOldestBeyondRetention(t *testing.T) {
	service := NewInMemoryService(6)
	for i := 0; i < 20; i++ {
		require.NoError(t, service.AppendMessage("s1", protocol.UserMessage(fmt.Sprintf("turn %d", i))))
	}

	count, err := service.GetMessageCount("s1")
	require.NoError(t, err)
	assert.Equal(t, 6, count)

	messages, err := service.GetMessages("s1", 0)
	require.NoError(t, err)
	require.Len(t, messages, 6)
	assert.Equal(t, "turn 14", messages[0].Content)
	assert.Equal(t, "turn 19", messages[5].Content)
}

func TestGetMessagesUnknownSessionIsEmpty(t *testing.T) {
	service := NewInMemoryService(0)

	messages, err := service.GetMessages("missing", 5)
	require.NoError(t, err)
	assert.Empty(t, messages)

	count, err := service.GetMessageCount("missing")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestEmptySessionIDRejected(t *testing.T) {
	service := NewInMemoryService(0)

	assert.Error(t, service.AppendMessage("", protocol.UserMessage("x")))
	_, err := service.GetMessages("", 0)
	assert.Error(t, err)
	_, err = service.GetOrCreateMetadata("")
	assert.Error(t, err)
	assert.Error(t, service.DeleteSession(""))
}

func TestMetadataTracksUpdates(t *testing.T) {
	service := NewInMemoryService(0)

	meta, err := service.GetOrCreateMetadata("s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", meta.ID)
	created := meta.CreatedAt

	require.NoError(t, service.AppendMessage("s1", protocol.UserMessage("hello")))

	meta, err = service.GetOrCreateMetadata("s1")
	require.NoError(t, err)
	assert.Equal(t, created, meta.CreatedAt)
	assert.False(t, meta.UpdatedAt.Before(created))
}

func TestDeleteSession(t *testing.T) {
	service := NewInMemoryService(0)

	require.NoError(t, service.AppendMessage("s1", protocol.UserMessage("hello")))
	require.NoError(t, service.AppendMessage("s2", protocol.UserMessage("hello")))
	assert.Equal(t, 2, service.SessionCount())

	require.NoError(t, service.DeleteSession("s1"))
	assert.Equal(t, 1, service.SessionCount())

	count, err := service.GetMessageCount("s1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestNewIDIsUnique(t *testing.T) {
	assert.NotEqual(t, NewID(), NewID())
	assert.Len(t, NewID(), 36)
}
