package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hospital_chat_service/internal/chat/domain"
	"hospital_chat_service/pkg/database"
)

// IdempotencyRepository (sender, clientMsgId) -> 已確認的 Message
type IdempotencyRepository interface {
	// Lookup 找不到時回傳 nil, nil
	Lookup(ctx context.Context, senderID, clientMsgID string) (*domain.Message, error)
	Remember(ctx context.Context, msg domain.Message) error
}

type redisIdempotencyRepository struct {
	store database.RedisRepository[domain.Message]
	ttl   time.Duration
}

// NewIdempotencyRepository create a IdempotencyRepository
func NewIdempotencyRepository(store database.RedisRepository[domain.Message], ttl time.Duration) IdempotencyRepository {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &redisIdempotencyRepository{store: store, ttl: ttl}
}

// IdempotencyKey redis key
func IdempotencyKey(senderID, clientMsgID string) string {
	return fmt.Sprintf("chat:idem:%s:%s", senderID, clientMsgID)
}

func (r *redisIdempotencyRepository) Lookup(ctx context.Context, senderID, clientMsgID string) (*domain.Message, error) {
	msg, err := r.store.Get(ctx, IdempotencyKey(senderID, clientMsgID))
	if errors.Is(err, database.ErrRedisNil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *redisIdempotencyRepository) Remember(ctx context.Context, msg domain.Message) error {
	if msg.ClientMsgID == "" {
		return nil
	}
	// 內容不留在 redis
	msg.Content = ""
	_, err := r.store.SetNX(ctx, IdempotencyKey(msg.SenderID, msg.ClientMsgID), msg, r.ttl)
	return err
}
