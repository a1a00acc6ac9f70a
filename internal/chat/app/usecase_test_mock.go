package app

import (
	"context"
	"time"

	"hospital_chat_service/internal/chat/domain"

	"github.com/stretchr/testify/mock"
)

// MockMessageRepository Mock MessageRepository
type MockMessageRepository struct {
	mock.Mock
}

// Insert mock insert, 回填 id / createdAt
func (m *MockMessageRepository) Insert(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	if args.Error(0) == nil {
		msg.ID = int64(len(m.Calls))
		msg.CreatedAt = time.Now().UTC()
	}
	return args.Error(0)
}

// ListBetween mock list
func (m *MockMessageRepository) ListBetween(ctx context.Context, userA, userB string, limit int) ([]domain.Message, error) {
	args := m.Called(ctx, userA, userB, limit)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// MarkRead mock mark read
func (m *MockMessageRepository) MarkRead(ctx context.Context, senderID, receiverID string) (int64, error) {
	args := m.Called(ctx, senderID, receiverID)
	return args.Get(0).(int64), args.Error(1)
}

// UnreadCountFor mock unread
func (m *MockMessageRepository) UnreadCountFor(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

// UnreadBetween mock unread between
func (m *MockMessageRepository) UnreadBetween(ctx context.Context, viewerID, otherID string) (int, error) {
	args := m.Called(ctx, viewerID, otherID)
	return args.Int(0), args.Error(1)
}

// Recent mock recent
func (m *MockMessageRepository) Recent(ctx context.Context, viewerID string) ([]domain.ConversationSummary, error) {
	args := m.Called(ctx, viewerID)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.ConversationSummary), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockUserRepository Mock UserRepository
type MockUserRepository struct {
	mock.Mock
}

// FindByID mock find user
func (m *MockUserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.User), args.Error(1)
	}
	return nil, args.Error(1)
}

// FindByIDs mock find users
func (m *MockUserRepository) FindByIDs(ctx context.Context, ids []string) (map[string]domain.User, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) != nil {
		return args.Get(0).(map[string]domain.User), args.Error(1)
	}
	return nil, args.Error(1)
}

// SetOnline mock set online
func (m *MockUserRepository) SetOnline(ctx context.Context, id string, online bool, at time.Time) error {
	args := m.Called(ctx, id, online, at)
	return args.Error(0)
}

// ListDirectory mock directory
func (m *MockUserRepository) ListDirectory(ctx context.Context, q domain.DirectoryQuery) ([]domain.User, int64, error) {
	args := m.Called(ctx, q)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.User), args.Get(1).(int64), args.Error(2)
	}
	return nil, 0, args.Error(2)
}

// ListActive mock list active
func (m *MockUserRepository) ListActive(ctx context.Context, viewerID string, roles []domain.Role) ([]domain.User, error) {
	args := m.Called(ctx, viewerID, roles)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.User), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockIdempotencyRepository Mock IdempotencyRepository
type MockIdempotencyRepository struct {
	mock.Mock
}

// Lookup mock lookup
func (m *MockIdempotencyRepository) Lookup(ctx context.Context, senderID, clientMsgID string) (*domain.Message, error) {
	args := m.Called(ctx, senderID, clientMsgID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// Remember mock remember
func (m *MockIdempotencyRepository) Remember(ctx context.Context, msg domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// MockAuditRepository Mock AuditRepository
type MockAuditRepository struct {
	mock.Mock
}

// Record mock record
func (m *MockAuditRepository) Record(ctx context.Context, entry domain.AuditEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// ListByActor mock list
func (m *MockAuditRepository) ListByActor(ctx context.Context, actorID string, limit int64) ([]domain.AuditEntry, error) {
	args := m.Called(ctx, actorID, limit)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.AuditEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockOfflineNotifier Mock OfflineNotifier
type MockOfflineNotifier struct {
	mock.Mock
}

// Notify mock notify
func (m *MockOfflineNotifier) Notify(ctx context.Context, notice domain.OfflineNotice) error {
	args := m.Called(ctx, notice)
	return args.Error(0)
}

// Close mock close
func (m *MockOfflineNotifier) Close() error {
	return m.Called().Error(0)
}

// MockChatService Mock ChatService
type MockChatService struct {
	mock.Mock
}

// Send mock send
func (m *MockChatService) Send(ctx context.Context, sender Identity, req SendRequest) (*SendResult, error) {
	args := m.Called(ctx, sender, req)
	if args.Get(0) != nil {
		return args.Get(0).(*SendResult), args.Error(1)
	}
	return nil, args.Error(1)
}

// MarkRead mock mark read
func (m *MockChatService) MarkRead(ctx context.Context, readerID, senderID string) (int64, error) {
	args := m.Called(ctx, readerID, senderID)
	return args.Get(0).(int64), args.Error(1)
}

// ConversationSummary mock summary
func (m *MockChatService) ConversationSummary(ctx context.Context, viewerID, otherID string) (domain.ConversationSummary, error) {
	args := m.Called(ctx, viewerID, otherID)
	return args.Get(0).(domain.ConversationSummary), args.Error(1)
}

// NotifyOffline mock notify offline
func (m *MockChatService) NotifyOffline(ctx context.Context, res *SendResult) {
	m.Called(ctx, res)
}

// AuditPresence mock audit presence
func (m *MockChatService) AuditPresence(ctx context.Context, userID string, online bool) {
	m.Called(ctx, userID, online)
}

// MockOnlineChecker Mock OnlineChecker
type MockOnlineChecker struct {
	Online map[string]bool
}

// IsOnline mock online
func (m MockOnlineChecker) IsOnline(userID string) bool {
	return m.Online[userID]
}
