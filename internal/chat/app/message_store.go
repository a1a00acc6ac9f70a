package app

import (
	"context"
	"fmt"

	"hospital_chat_service/internal/chat/domain"
	"hospital_chat_service/internal/chat/repository"
	"hospital_chat_service/pkg/encrypt"
	"hospital_chat_service/pkg/logger"

	"go.uber.org/zap"
)

// Codec 訊息內容加解密
type Codec interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(blob string) (string, error)
}

// MessageStore 在 repository 之上負責加解密, 讀取時逐筆隔離解密失敗
type MessageStore struct {
	repo  repository.MessageRepository
	codec Codec
}

// NewMessageStore create MessageStore
func NewMessageStore(repo repository.MessageRepository, codec Codec) *MessageStore {
	return &MessageStore{repo: repo, codec: codec}
}

// Append 加密後寫入, 回傳明文的已確認訊息
func (s *MessageStore) Append(ctx context.Context, senderID, receiverID, plaintext, clientMsgID string) (*domain.Message, error) {
	blob, err := s.codec.Encrypt(plaintext)
	if err != nil {
		return nil, fmt.Errorf("encrypt message: %w", err)
	}

	msg := &domain.Message{
		SenderID:    senderID,
		ReceiverID:  receiverID,
		Content:     blob,
		ClientMsgID: clientMsgID,
	}
	if err := s.repo.Insert(ctx, msg); err != nil {
		return nil, err
	}

	msg.Content = plaintext
	return msg, nil
}

// ListBetween 最近 limit 則, createdAt 升冪
func (s *MessageStore) ListBetween(ctx context.Context, userA, userB string, limit int) ([]domain.Message, error) {
	messages, err := s.repo.ListBetween(ctx, userA, userB, limit)
	if err != nil {
		return nil, err
	}
	for i := range messages {
		s.open(&messages[i])
	}
	return messages, nil
}

// MarkRead senderID -> receiverID 的未讀設為已讀
func (s *MessageStore) MarkRead(ctx context.Context, senderID, receiverID string) (int64, error) {
	return s.repo.MarkRead(ctx, senderID, receiverID)
}

// UnreadCountFor userID 收到的全部未讀
func (s *MessageStore) UnreadCountFor(ctx context.Context, userID string) (int, error) {
	return s.repo.UnreadCountFor(ctx, userID)
}

// UnreadBetween otherID 傳給 viewerID 的未讀
func (s *MessageStore) UnreadBetween(ctx context.Context, viewerID, otherID string) (int, error) {
	return s.repo.UnreadBetween(ctx, viewerID, otherID)
}

// Recent 每個對象一列, lastMessageAt 降冪
func (s *MessageStore) Recent(ctx context.Context, viewerID string) ([]domain.ConversationSummary, error) {
	summaries, err := s.repo.Recent(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	for i := range summaries {
		plain, err := s.codec.Decrypt(summaries[i].LastMessage)
		if err != nil {
			s.decryptFailed(summaries[i].LastMessageID, err)
			plain = encrypt.Placeholder
		}
		summaries[i].LastMessage = plain
	}
	return summaries, nil
}

func (s *MessageStore) open(msg *domain.Message) {
	plain, err := s.codec.Decrypt(msg.Content)
	if err != nil {
		s.decryptFailed(msg.ID, err)
		msg.Content = encrypt.Placeholder
		msg.Undecryptable = true
		return
	}
	msg.Content = plain
}

func (s *MessageStore) decryptFailed(messageID int64, err error) {
	decryptFailures.Inc()
	logger.Log.Warn("message decrypt failed", zap.Int64("messageID", messageID), zap.Error(err))
}
