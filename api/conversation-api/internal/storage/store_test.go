package internal_storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_entity "github.com/intelliconvo/api/conversation-api/internal/entity"
	"github.com/intelliconvo/pkg/commons"
	"github.com/intelliconvo/pkg/configs"
	"github.com/intelliconvo/pkg/connectors"
	convo_errors "github.com/intelliconvo/pkg/errors"
	"github.com/intelliconvo/pkg/utils"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	return openTestStore(t, "file::memory:", 1)
}

// newFileStore backs the store with a file so several connections share it.
func newFileStore(t *testing.T, connections int) Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "convo.db") + "?_busy_timeout=10000&_journal_mode=WAL"
	return openTestStore(t, path, connections)
}

func openTestStore(t *testing.T, path string, connections int) Store {
	t.Helper()
	conn, err := connectors.NewDatabaseConnector(configs.DatabaseConfig{
		Driver:            "sqlite",
		Path:              path,
		MaxOpenConnection: connections,
	}, commons.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, conn.Connect(context.Background()))
	t.Cleanup(func() { conn.Disconnect(context.Background()) })

	store := NewStore(conn, commons.NewNopLogger())
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

// =============================================================================
// Sessions
// =============================================================================

func TestStore_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	s, err := store.CreateSession(ctx, "Interview", "")
	require.NoError(t, err)
	assert.NotZero(t, s.Id)

	got, err := store.GetSession(ctx, s.Id)
	require.NoError(t, err)
	assert.Equal(t, "Interview", got.Title)

	updated, err := store.UpdateSession(ctx, s.Id, SessionPatch{Summary: utils.Ptr("short summary")})
	require.NoError(t, err)
	assert.Equal(t, "short summary", updated.Summary)
	assert.Equal(t, "Interview", updated.Title)

	all, err := store.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStore_GetSessionNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetSession(context.Background(), 99)
	require.Error(t, err)
	assert.True(t, convo_errors.Is(err, convo_errors.ErrNotFound))
}

// =============================================================================
// Messages
// =============================================================================

func TestStore_MessagesOrderedByTimestampThenId(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	s, err := store.CreateSession(ctx, "t", "")
	require.NoError(t, err)

	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	for _, m := range []struct {
		text string
		at   time.Time
	}{
		{"second", base.Add(time.Second)},
		{"first", base},
		{"tie", base.Add(time.Second)},
	} {
		_, err := store.CreateMessage(ctx, &internal_entity.Message{SessionId: s.Id, Text: m.text, SpeakerType: "self", Timestamp: m.at})
		require.NoError(t, err)
	}

	msgs, err := store.ListMessages(ctx, s.Id)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Text)
	assert.Equal(t, "second", msgs[1].Text)
	assert.Equal(t, "tie", msgs[2].Text)
}

func TestStore_CreateMessageIdempotentOnClientRef(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	s, err := store.CreateSession(ctx, "t", "")
	require.NoError(t, err)

	first, err := store.CreateMessage(ctx, &internal_entity.Message{SessionId: s.Id, Text: "hello", SpeakerType: "self", Timestamp: time.Now(), ClientRef: "ref-1"})
	require.NoError(t, err)
	again, err := store.CreateMessage(ctx, &internal_entity.Message{SessionId: s.Id, Text: "hello", SpeakerType: "self", Timestamp: time.Now(), ClientRef: "ref-1"})
	require.NoError(t, err)
	assert.Equal(t, first.Id, again.Id)

	msgs, err := store.ListMessages(ctx, s.Id)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestStore_CreateMessageUnknownSession(t *testing.T) {
	store := newTestStore(t)
	_, err := store.CreateMessage(context.Background(), &internal_entity.Message{SessionId: 5, Text: "x", SpeakerType: "self", Timestamp: time.Now()})
	assert.True(t, convo_errors.Is(err, convo_errors.ErrNotFound))
}

// =============================================================================
// Topics
// =============================================================================

func TestStore_UpsertTopicMergesByLabel(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	a, err := store.CreateSession(ctx, "a", "")
	require.NoError(t, err)
	b, err := store.CreateSession(ctx, "b", "")
	require.NoError(t, err)

	t1, created, err := store.UpsertTopic(ctx, a.Id, "Docker", 4)
	require.NoError(t, err)
	assert.True(t, created)

	t2, created, err := store.UpsertTopic(ctx, a.Id, "Docker", 3)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, t1.Id, t2.Id)
	assert.Equal(t, 7, t2.Weight)

	_, created, err = store.UpsertTopic(ctx, b.Id, "Docker", 0)
	require.NoError(t, err)
	assert.True(t, created, "labels are unique per session only")

	topics, err := store.ListTopics(ctx, a.Id)
	require.NoError(t, err)
	require.Len(t, topics, 1)
	assert.Equal(t, 7, topics[0].Weight)
}

func TestStore_UpsertTopicIgnoresCaseAndSpace(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	s, err := store.CreateSession(ctx, "s", "")
	require.NoError(t, err)

	first, created, err := store.UpsertTopic(ctx, s.Id, "Docker", 2)
	require.NoError(t, err)
	require.True(t, created)

	tests := []struct {
		label  string
		weight int
	}{
		{label: "docker", weight: 5},
		{label: " DOCKER ", weight: 1},
	}
	want := 2
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			topic, created, err := store.UpsertTopic(ctx, s.Id, tt.label, tt.weight)
			require.NoError(t, err)
			want += tt.weight
			assert.False(t, created)
			assert.Equal(t, first.Id, topic.Id)
			assert.Equal(t, "Docker", topic.Label, "first spelling is kept")
			assert.Equal(t, want, topic.Weight)
		})
	}

	topics, err := store.ListTopics(ctx, s.Id)
	require.NoError(t, err)
	assert.Len(t, topics, 1)
}

func TestStore_ConcurrentUpsertTopicCreatesOnce(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t, 4)
	s, err := store.CreateSession(ctx, "s", "")
	require.NoError(t, err)

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		ids     = map[int64]bool{}
		errs    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			topic, isNew, err := store.UpsertTopic(ctx, s.Id, "Kubernetes", 2)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			ids[topic.Id] = true
			if isNew {
				created++
			}
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Equal(t, 1, created)
	assert.Len(t, ids, 1)
	topics, err := store.ListTopics(ctx, s.Id)
	require.NoError(t, err)
	require.Len(t, topics, 1)
	assert.Equal(t, workers*2, topics[0].Weight)
}

// =============================================================================
// Action items and snapshot
// =============================================================================

func TestStore_ActionItemToggle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	s, err := store.CreateSession(ctx, "t", "")
	require.NoError(t, err)

	item, err := store.CreateActionItem(ctx, &internal_entity.ActionItem{SessionId: s.Id, Text: "Share documentation"})
	require.NoError(t, err)
	assert.False(t, item.Completed)

	done, err := store.UpdateActionItem(ctx, item.Id, ActionItemPatch{Completed: utils.Ptr(true)})
	require.NoError(t, err)
	assert.True(t, done.Completed)

	undone, err := store.UpdateActionItem(ctx, item.Id, ActionItemPatch{Completed: utils.Ptr(false)})
	require.NoError(t, err)
	assert.False(t, undone.Completed)

	_, err = store.UpdateActionItem(ctx, 404, ActionItemPatch{Completed: utils.Ptr(true)})
	assert.True(t, convo_errors.Is(err, convo_errors.ErrNotFound))
}

func TestStore_Snapshot(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	s, err := store.CreateSession(ctx, "Interview", "")
	require.NoError(t, err)
	msg, err := store.CreateMessage(ctx, &internal_entity.Message{SessionId: s.Id, Text: "we use docker", SpeakerType: "other", Timestamp: time.Now()})
	require.NoError(t, err)
	_, _, err = store.UpsertTopic(ctx, s.Id, "Docker", 4)
	require.NoError(t, err)
	_, err = store.CreateActionItem(ctx, &internal_entity.ActionItem{SessionId: s.Id, MessageId: &msg.Id, Text: "follow up"})
	require.NoError(t, err)

	snap, err := store.Snapshot(ctx, s.Id)
	require.NoError(t, err)
	assert.Equal(t, s.Id, snap.Session.ID)
	assert.Len(t, snap.Messages, 1)
	assert.Len(t, snap.Topics, 1)
	require.Len(t, snap.ActionItems, 1)
	assert.Equal(t, msg.Id, *snap.ActionItems[0].SourceMessageID)

	_, err = store.Snapshot(ctx, 1234)
	assert.True(t, convo_errors.Is(err, convo_errors.ErrNotFound))
}
