package app

import (
	"context"
	"math"
	"strings"
	"time"

	"hospital_chat_service/internal/chat/domain"
	"hospital_chat_service/internal/chat/repository"
	"hospital_chat_service/pkg/config"
	errprocess "hospital_chat_service/pkg/err"
	"hospital_chat_service/pkg/logger"

	"go.uber.org/zap"
)

const (
	defaultDirectoryLimit = 50
	maxDirectoryLimit     = 100
	defaultAuditLimit     = 50
)

// Identity 已驗證的呼叫者 (token 內容)
type Identity struct {
	UserID string
	Role   domain.Role
}

// SendRequest send_message / POST /chat/send
type SendRequest struct {
	ReceiverID  string `json:"receiverId"`
	Content     string `json:"content"`
	ClientMsgID string `json:"clientMsgId,omitempty"`
}

// SendResult 已確認的訊息, Duplicate 表示 clientMsgId 重送
type SendResult struct {
	Message   domain.Message
	Sender    domain.User
	Receiver  domain.User
	Duplicate bool
}

// OnlineChecker presence 查詢
type OnlineChecker interface {
	IsOnline(userID string) bool
}

// ChatUseCase 聊天用例, realtime 與 REST 共用
type ChatUseCase struct {
	store    *MessageStore
	users    repository.UserRepository
	idem     repository.IdempotencyRepository
	audit    repository.AuditRepository
	avatars  repository.AvatarRepository
	notifier repository.OfflineNotifier
	online   OnlineChecker
	history  config.HistoryConfig
}

// NewChatUseCase init chat use case
func NewChatUseCase(
	store *MessageStore,
	users repository.UserRepository,
	idem repository.IdempotencyRepository,
	audit repository.AuditRepository,
	avatars repository.AvatarRepository,
	notifier repository.OfflineNotifier,
	online OnlineChecker,
	history config.HistoryConfig,
) *ChatUseCase {
	return &ChatUseCase{
		store:    store,
		users:    users,
		idem:     idem,
		audit:    audit,
		avatars:  avatars,
		notifier: notifier,
		online:   online,
		history:  history.WithDefaults(),
	}
}

// Send 驗證 -> 權限 -> 冪等檢查 -> 加密寫入
func (uc *ChatUseCase) Send(ctx context.Context, sender Identity, req SendRequest) (*SendResult, error) {
	receiverID := strings.TrimSpace(req.ReceiverID)
	content := strings.TrimSpace(req.Content)
	clientMsgID := strings.TrimSpace(req.ClientMsgID)

	if receiverID == "" {
		return nil, domain.ErrMissingReceiver
	}
	if content == "" {
		return nil, domain.ErrEmptyContent
	}
	if receiverID == sender.UserID {
		return nil, domain.ErrSelfConversation
	}

	users, err := uc.users.FindByIDs(ctx, []string{sender.UserID, receiverID})
	if err != nil {
		return nil, errprocess.Wrap("load chat participants", err, zap.String("sender", sender.UserID))
	}
	receiver, ok := users[receiverID]
	if !ok || !receiver.IsActive {
		return nil, domain.ErrUserNotFound
	}
	senderUser, ok := users[sender.UserID]
	if !ok {
		senderUser = domain.User{ID: sender.UserID, Role: sender.Role}
	}
	if !CanChat(senderUser.Role, receiver.Role) {
		return nil, domain.ErrNotPermitted
	}

	if clientMsgID != "" {
		prev, err := uc.idem.Lookup(ctx, sender.UserID, clientMsgID)
		if err != nil {
			logger.Log.Warn("idempotency lookup failed", zap.String("sender", sender.UserID), zap.Error(err))
		}
		if prev != nil && prev.ReceiverID == receiverID {
			prev.Content = content
			return &SendResult{Message: *prev, Sender: senderUser, Receiver: receiver, Duplicate: true}, nil
		}
	}

	msg, err := uc.store.Append(ctx, sender.UserID, receiverID, content, clientMsgID)
	if err != nil {
		return nil, errprocess.Wrap("append message", err, zap.String("sender", sender.UserID), zap.String("receiver", receiverID))
	}
	sentMessages.Inc()

	if err := uc.idem.Remember(ctx, *msg); err != nil {
		logger.Log.Warn("idempotency remember failed", zap.Int64("messageID", msg.ID), zap.Error(err))
	}
	uc.record(ctx, domain.AuditEntry{Action: domain.AuditSend, ActorID: sender.UserID, TargetID: receiverID, MessageID: msg.ID})

	return &SendResult{Message: *msg, Sender: senderUser, Receiver: receiver}, nil
}

// MarkRead senderID 傳給 readerID 的訊息設為已讀
func (uc *ChatUseCase) MarkRead(ctx context.Context, readerID, senderID string) (int64, error) {
	senderID = strings.TrimSpace(senderID)
	if senderID == "" {
		return 0, domain.ErrMissingSender
	}
	if senderID == readerID {
		return 0, domain.ErrSelfConversation
	}

	n, err := uc.store.MarkRead(ctx, senderID, readerID)
	if err != nil {
		return 0, errprocess.Wrap("mark read", err, zap.String("reader", readerID), zap.String("sender", senderID))
	}
	if n > 0 {
		uc.record(ctx, domain.AuditEntry{Action: domain.AuditMarkRead, ActorID: readerID, TargetID: senderID, Count: n})
	}
	return n, nil
}

// History 與 otherID 的訊息, limit <= 0 使用預設值
func (uc *ChatUseCase) History(ctx context.Context, viewer Identity, otherID string, limit int) ([]domain.Message, error) {
	if _, err := uc.counterpart(ctx, viewer, otherID); err != nil {
		return nil, err
	}

	messages, err := uc.store.ListBetween(ctx, viewer.UserID, otherID, uc.historyLimit(limit))
	if err != nil {
		return nil, errprocess.Wrap("list history", err, zap.String("viewer", viewer.UserID), zap.String("other", otherID))
	}
	return messages, nil
}

func (uc *ChatUseCase) historyLimit(limit int) int {
	switch {
	case limit <= 0:
		return uc.history.DefaultLimit
	case limit > uc.history.MaxLimit:
		return uc.history.MaxLimit
	default:
		return limit
	}
}

// UnreadCount userID 全部未讀
func (uc *ChatUseCase) UnreadCount(ctx context.Context, userID string) (int, error) {
	n, err := uc.store.UnreadCountFor(ctx, userID)
	if err != nil {
		return 0, errprocess.Wrap("unread count", err, zap.String("userID", userID))
	}
	return n, nil
}

// Recent 對話列表, 補上對方名稱 / 頭像 / 在線狀態
func (uc *ChatUseCase) Recent(ctx context.Context, viewerID string) ([]domain.ConversationSummary, error) {
	summaries, err := uc.store.Recent(ctx, viewerID)
	if err != nil {
		return nil, errprocess.Wrap("load recent conversations", err, zap.String("viewer", viewerID))
	}

	ids := make([]string, 0, len(summaries))
	for _, s := range summaries {
		ids = append(ids, s.OtherUserID)
	}
	users, err := uc.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, errprocess.Wrap("load conversation users", err, zap.String("viewer", viewerID))
	}

	for i := range summaries {
		uc.decorate(ctx, &summaries[i], users[summaries[i].OtherUserID])
	}
	return summaries, nil
}

// ConversationSummary viewer 與 otherID 的單一對話摘要 (conversation_updated)
func (uc *ChatUseCase) ConversationSummary(ctx context.Context, viewerID, otherID string) (domain.ConversationSummary, error) {
	summary := domain.ConversationSummary{OtherUserID: otherID}

	last, err := uc.store.ListBetween(ctx, viewerID, otherID, 1)
	if err != nil {
		return summary, errprocess.Wrap("load last message", err, zap.String("viewer", viewerID), zap.String("other", otherID))
	}
	if len(last) > 0 {
		summary.LastMessage = last[0].Content
		summary.LastMessageID = last[0].ID
		summary.LastSenderID = last[0].SenderID
		summary.LastMessageAt = last[0].CreatedAt
	}

	if summary.UnreadCount, err = uc.store.UnreadBetween(ctx, viewerID, otherID); err != nil {
		return summary, errprocess.Wrap("load unread", err, zap.String("viewer", viewerID), zap.String("other", otherID))
	}

	users, err := uc.users.FindByIDs(ctx, []string{otherID})
	if err != nil {
		return summary, errprocess.Wrap("load conversation user", err, zap.String("other", otherID))
	}
	uc.decorate(ctx, &summary, users[otherID])
	return summary, nil
}

func (uc *ChatUseCase) decorate(ctx context.Context, s *domain.ConversationSummary, other domain.User) {
	s.IsOnline = uc.online.IsOnline(s.OtherUserID)
	if other.ID == "" {
		return
	}
	s.OtherUserName = other.DisplayName()
	s.OtherUserRole = other.Role
	s.OtherUserProfile = uc.avatars.URL(ctx, other.Profile)
}

// Directory 可對話的使用者目錄, patient 只看得到 doctor
func (uc *ChatUseCase) Directory(ctx context.Context, viewer Identity, search string, page, limit int) (*domain.DirectoryPage, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultDirectoryLimit
	}
	if limit > maxDirectoryLimit {
		limit = maxDirectoryLimit
	}
	result := &domain.DirectoryPage{Users: []domain.User{}, Page: page, Limit: limit}

	role, err := uc.roleOf(ctx, viewer)
	if err != nil {
		return nil, err
	}
	roles := VisibleRoles(role)
	if len(roles) == 0 {
		return result, nil
	}

	users, total, err := uc.users.ListDirectory(ctx, domain.DirectoryQuery{
		ViewerID:     viewer.UserID,
		AllowedRoles: roles,
		Search:       search,
		Page:         page,
		Limit:        limit,
	})
	if err != nil {
		return nil, errprocess.Wrap("list directory", err, zap.String("viewer", viewer.UserID))
	}

	for i := range users {
		uc.present(ctx, &users[i])
	}
	result.Users = users
	result.Total = total
	result.Pages = int(math.Ceil(float64(total) / float64(limit)))
	return result, nil
}

// GetUser 單一使用者, 不能查自己
func (uc *ChatUseCase) GetUser(ctx context.Context, viewer Identity, userID string) (*domain.User, error) {
	u, err := uc.counterpart(ctx, viewer, userID)
	if err != nil {
		return nil, err
	}
	uc.present(ctx, u)
	return u, nil
}

// OnlineUsers viewer 可對話的 active users 與即時在線狀態
func (uc *ChatUseCase) OnlineUsers(ctx context.Context, viewer Identity) ([]domain.User, error) {
	role, err := uc.roleOf(ctx, viewer)
	if err != nil {
		return nil, err
	}
	roles := VisibleRoles(role)
	if len(roles) == 0 {
		return []domain.User{}, nil
	}

	users, err := uc.users.ListActive(ctx, viewer.UserID, roles)
	if err != nil {
		return nil, errprocess.Wrap("list online users", err, zap.String("viewer", viewer.UserID))
	}
	for i := range users {
		uc.present(ctx, &users[i])
	}
	return users, nil
}

// AuditTrail 只有 admin 可查詢
func (uc *ChatUseCase) AuditTrail(ctx context.Context, viewer Identity, userID string, limit int64) ([]domain.AuditEntry, error) {
	role, err := uc.roleOf(ctx, viewer)
	if err != nil {
		return nil, err
	}
	if role != domain.RoleAdmin {
		return nil, domain.ErrNotPermitted
	}
	if limit <= 0 {
		limit = defaultAuditLimit
	}

	entries, err := uc.audit.ListByActor(ctx, userID, limit)
	if err != nil {
		return nil, errprocess.Wrap("list audit", err, zap.String("actor", userID))
	}
	return entries, nil
}

// NotifyOffline 收件者不在線, 發佈離線通知
func (uc *ChatUseCase) NotifyOffline(ctx context.Context, res *SendResult) {
	notice := domain.OfflineNotice{
		MessageID:  res.Message.ID,
		SenderID:   res.Message.SenderID,
		SenderName: res.Sender.DisplayName(),
		ReceiverID: res.Message.ReceiverID,
		CreatedAt:  res.Message.CreatedAt,
	}
	if err := uc.notifier.Notify(ctx, notice); err != nil {
		logger.Log.Warn("offline notice failed", zap.Int64("messageID", notice.MessageID), zap.Error(err))
	}
}

// AuditPresence 上線 / 離線稽核
func (uc *ChatUseCase) AuditPresence(ctx context.Context, userID string, online bool) {
	action := domain.AuditLeave
	if online {
		action = domain.AuditJoin
	}
	uc.record(ctx, domain.AuditEntry{Action: action, ActorID: userID})
}

func (uc *ChatUseCase) record(ctx context.Context, entry domain.AuditEntry) {
	entry.At = time.Now().UTC()
	if err := uc.audit.Record(ctx, entry); err != nil {
		logger.Log.Warn("audit record failed", zap.String("action", string(entry.Action)), zap.String("actor", entry.ActorID), zap.Error(err))
	}
}

// counterpart 載入對方並檢查是否可對話
func (uc *ChatUseCase) counterpart(ctx context.Context, viewer Identity, otherID string) (*domain.User, error) {
	if otherID == viewer.UserID {
		return nil, domain.ErrSelfConversation
	}

	other, err := uc.users.FindByID(ctx, otherID)
	if err != nil {
		return nil, err
	}

	role, err := uc.roleOf(ctx, viewer)
	if err != nil {
		return nil, err
	}
	if !CanChat(role, other.Role) {
		return nil, domain.ErrNotPermitted
	}
	return other, nil
}

// roleOf token 沒帶 role 時以資料庫為準
func (uc *ChatUseCase) roleOf(ctx context.Context, viewer Identity) (domain.Role, error) {
	if viewer.Role != "" {
		return viewer.Role, nil
	}
	u, err := uc.users.FindByID(ctx, viewer.UserID)
	if err != nil {
		return "", err
	}
	return u.Role, nil
}

func (uc *ChatUseCase) present(ctx context.Context, u *domain.User) {
	u.IsCurrentlyOnline = uc.online.IsOnline(u.ID)
	u.Profile = uc.avatars.URL(ctx, u.Profile)
}
