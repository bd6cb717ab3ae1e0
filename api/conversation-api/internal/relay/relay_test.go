package internal_relay

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intelliconvo/pkg/commons"
	"github.com/intelliconvo/pkg/protocol"
)

type recordingSink struct {
	sessions []int64
	frames   []protocol.Frame
}

func (s *recordingSink) Deliver(sessionID int64, frame protocol.Frame) int {
	s.sessions = append(s.sessions, sessionID)
	s.frames = append(s.frames, frame)
	return 1
}

func TestRelay_PublishUsesSessionChannel(t *testing.T) {
	client, mock := redismock.NewClientMock()
	r := NewRelay(client, "intelliconvo:session:", commons.NewNopLogger())

	frame := protocol.Frame{Type: protocol.TypeNewMessage, Message: &protocol.Message{ID: 1, SessionID: 42, Text: "hi"}}
	payload, err := json.Marshal(envelope{Origin: r.Origin(), SessionID: 42, Frame: frame})
	require.NoError(t, err)
	mock.ExpectPublish("intelliconvo:session:42", string(payload)).SetVal(2)

	require.NoError(t, r.Publish(context.Background(), 42, frame))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelay_PublishError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	r := NewRelay(client, "p:", commons.NewNopLogger())
	frame := protocol.Frame{Type: protocol.TypeNewTopic}
	payload, _ := json.Marshal(envelope{Origin: r.Origin(), SessionID: 1, Frame: frame})
	mock.ExpectPublish("p:1", string(payload)).SetErr(assert.AnError)

	assert.Error(t, r.Publish(context.Background(), 1, frame))
}

func TestRelay_HandleSkipsOwnAndMalformed(t *testing.T) {
	client, _ := redismock.NewClientMock()
	r := NewRelay(client, "p:", commons.NewNopLogger())
	sink := &recordingSink{}

	own, _ := json.Marshal(envelope{Origin: r.Origin(), SessionID: 1, Frame: protocol.Frame{Type: protocol.TypeNewTopic}})
	foreign, _ := json.Marshal(envelope{Origin: "other-instance", SessionID: 7, Frame: protocol.Frame{Type: protocol.TypeNewActionItem}})

	r.handle(&redis.Message{Channel: "p:1", Payload: string(own)}, sink)
	r.handle(&redis.Message{Channel: "p:1", Payload: "{broken"}, sink)
	r.handle(&redis.Message{Channel: "elsewhere:7", Payload: string(foreign)}, sink)
	r.handle(&redis.Message{Channel: "p:7", Payload: string(foreign)}, sink)

	require.Len(t, sink.frames, 1)
	assert.Equal(t, int64(7), sink.sessions[0])
	assert.Equal(t, protocol.TypeNewActionItem, sink.frames[0].Type)
}
