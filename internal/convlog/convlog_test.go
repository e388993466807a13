package convlog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-proxy/internal/domain"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	log, err := Open(filepath.Join(t.TempDir(), "conv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	return log
}

func TestLogAppendAndMessages(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	_, err := log.Append(ctx, "s1", domain.RoleUser, "hello")
	require.NoError(t, err)
	_, err = log.Append(ctx, "s1", domain.RoleAssistant, "hi there")
	require.NoError(t, err)
	_, err = log.Append(ctx, "other", domain.RoleUser, "unrelated")
	require.NoError(t, err)

	entries, err := log.Messages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, domain.RoleUser, entries[0].Role)
	assert.Equal(t, "hello", entries[0].Content)
	assert.True(t, entries[0].Final)
	assert.Equal(t, "hi there", entries[1].Content)
}

func TestLogMessagesKeepConversationOrder(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	// Many exchanges land within the same created_at second; order must not
	// depend on the timestamp column.
	for i := 0; i < 20; i++ {
		_, err := log.Append(ctx, "s1", domain.RoleUser, fmt.Sprintf("question %d", i))
		require.NoError(t, err)
		_, err = log.Append(ctx, "s1", domain.RoleAssistant, fmt.Sprintf("answer %d", i))
		require.NoError(t, err)
	}

	entries, err := log.Messages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, entries, 40)

	for i, e := range entries {
		if i%2 == 0 {
			assert.Equal(t, domain.RoleUser, e.Role, "entry %d", i)
			assert.Equal(t, fmt.Sprintf("question %d", i/2), e.Content)
		} else {
			assert.Equal(t, domain.RoleAssistant, e.Role, "entry %d", i)
			assert.Equal(t, fmt.Sprintf("answer %d", i/2), e.Content)
		}
	}
}

func TestLogChunkDurability(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	const id = "msg-1"
	require.NoError(t, log.AppendChunk(ctx, id, "s1", domain.RoleAssistant, "The answer "))
	require.NoError(t, log.AppendChunk(ctx, id, "s1", domain.RoleAssistant, "is "))

	// A broken connection leaves the chunks written so far, marked
	// non-final.
	entries, err := log.Messages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "The answer is ", entries[0].Content)
	assert.False(t, entries[0].Final)
}

func TestLogFinalize(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	const id = "msg-2"
	require.NoError(t, log.AppendChunk(ctx, id, "s1", domain.RoleAssistant, "The answer is"))
	require.NoError(t, log.Finalize(ctx, id, "The answer is 42."))

	entries, err := log.Messages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "The answer is 42.", entries[0].Content)
	assert.True(t, entries[0].Final)
}

func TestSinkPersistsStream(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	sink := NewSink(log, "s1", slog.Default())
	require.NoError(t, sink.OnChunk(ctx, "Hel"))
	require.NoError(t, sink.OnChunk(ctx, "lo"))
	require.NoError(t, sink.OnComplete(ctx, "Hello", domain.Usage{TotalTokens: 3}))

	entries, err := log.Messages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, sink.MessageID(), entries[0].ID)
	assert.Equal(t, domain.RoleAssistant, entries[0].Role)
	assert.Equal(t, "Hello", entries[0].Content)
	assert.True(t, entries[0].Final)
}

func TestSinkErrorRetainsPartial(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	sink := NewSink(log, "s1", slog.Default())
	require.NoError(t, sink.OnChunk(ctx, "partial "))
	sink.OnError(ctx, context.Canceled)

	entries, err := log.Messages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "partial ", entries[0].Content)
	assert.False(t, entries[0].Final)
}
