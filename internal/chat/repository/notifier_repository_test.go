package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"hospital_chat_service/internal/chat/domain"

	"github.com/segmentio/kafka-go"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRabbitRepo struct {
	mock.Mock
}

func (m *mockRabbitRepo) QueueDeclare(name string) error {
	return m.Called(name).Error(0)
}

func (m *mockRabbitRepo) Publish(exchange, key string, msg amqp.Publishing) error {
	return m.Called(exchange, key, msg).Error(0)
}

func (m *mockRabbitRepo) Close() error {
	return m.Called().Error(0)
}

type fakeKafkaWriter struct {
	messages []kafka.Message
	closed   bool
}

func (w *fakeKafkaWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeKafkaWriter) Close() error {
	w.closed = true
	return nil
}

var testNotice = domain.OfflineNotice{
	MessageID:  12,
	SenderID:   "d1",
	SenderName: "Dana Wu",
	ReceiverID: "p1",
	CreatedAt:  time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
}

func TestRabbitNotifier(t *testing.T) {
	t.Run("declare failure", func(t *testing.T) {
		repo := new(mockRabbitRepo)
		repo.On("QueueDeclare", "chat.offline").Return(errors.New("channel closed"))

		n, err := NewRabbitNotifier(repo, "chat.offline")
		assert.Error(t, err)
		assert.Nil(t, n)
	})

	t.Run("publishes persistent json", func(t *testing.T) {
		repo := new(mockRabbitRepo)
		repo.On("QueueDeclare", "chat.offline").Return(nil)
		repo.On("Publish", "", "chat.offline", mock.MatchedBy(func(p amqp.Publishing) bool {
			var got domain.OfflineNotice
			if err := json.Unmarshal(p.Body, &got); err != nil {
				return false
			}
			return p.DeliveryMode == amqp.Persistent && p.ContentType == "application/json" && got.MessageID == 12
		})).Return(nil)
		repo.On("Close").Return(nil)

		n, err := NewRabbitNotifier(repo, "chat.offline")
		require.NoError(t, err)
		require.NoError(t, n.Notify(context.Background(), testNotice))
		require.NoError(t, n.Close())
		repo.AssertExpectations(t)
	})
}

func TestKafkaNotifierKeysByReceiver(t *testing.T) {
	w := &fakeKafkaWriter{}
	n := NewKafkaNotifier(w)

	require.NoError(t, n.Notify(context.Background(), testNotice))
	require.Len(t, w.messages, 1)
	assert.Equal(t, "p1", string(w.messages[0].Key))

	var got domain.OfflineNotice
	require.NoError(t, json.Unmarshal(w.messages[0].Value, &got))
	assert.Equal(t, testNotice.MessageID, got.MessageID)
	assert.Equal(t, testNotice.SenderName, got.SenderName)
	assert.True(t, testNotice.CreatedAt.Equal(got.CreatedAt))
	// 通知不含訊息內容
	assert.NotContains(t, string(w.messages[0].Value), "content")

	require.NoError(t, n.Close())
	assert.True(t, w.closed)
}

func TestNoopNotifier(t *testing.T) {
	n := NewNoopNotifier()
	assert.NoError(t, n.Notify(context.Background(), testNotice))
	assert.NoError(t, n.Close())
}

func TestStaticAvatarRepository(t *testing.T) {
	r := NewStaticAvatarRepository()
	assert.Equal(t, "avatars/d1.png", r.URL(context.Background(), "avatars/d1.png"))
	assert.Equal(t, "", r.URL(context.Background(), ""))
	assert.True(t, isAbsoluteURL("https://cdn.example.com/a.png"))
	assert.False(t, isAbsoluteURL("avatars/a.png"))
}
