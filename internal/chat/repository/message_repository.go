package repository

import (
	"context"
	"fmt"

	"hospital_chat_service/internal/chat/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// MessageRepository chat_messages 存取, Content 皆為加密後字串
type MessageRepository interface {
	// Insert 單一 statement 寫入, 回填 ID / CreatedAt / IsRead
	Insert(ctx context.Context, msg *domain.Message) error
	// ListBetween 兩人最近 limit 則, createdAt 由舊到新
	ListBetween(ctx context.Context, userA, userB string, limit int) ([]domain.Message, error)
	// MarkRead sender -> receiver 的未讀全部設為已讀, 回傳影響筆數
	MarkRead(ctx context.Context, senderID, receiverID string) (int64, error)
	UnreadCountFor(ctx context.Context, userID string) (int, error)
	UnreadBetween(ctx context.Context, viewerID, otherID string) (int, error)
	// Recent 每個對象最後一則訊息 (LastMessage 為加密字串), lastMessageAt 由新到舊
	Recent(ctx context.Context, viewerID string) ([]domain.ConversationSummary, error)
}

type messageRepository struct {
	db *pgxpool.Pool
}

// NewMessageRepository create a MessageRepository
func NewMessageRepository(db *pgxpool.Pool) MessageRepository {
	return &messageRepository{db: db}
}

const messageColumns = "id, sender_id, receiver_id, content, client_msg_id, created_at, is_read"

func (r *messageRepository) Insert(ctx context.Context, msg *domain.Message) error {
	var clientMsgID *string
	if msg.ClientMsgID != "" {
		clientMsgID = &msg.ClientMsgID
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO chat_messages (sender_id, receiver_id, content, client_msg_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at, is_read`,
		msg.SenderID, msg.ReceiverID, msg.Content, clientMsgID)
	if err := row.Scan(&msg.ID, &msg.CreatedAt, &msg.IsRead); err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

func (r *messageRepository) ListBetween(ctx context.Context, userA, userB string, limit int) ([]domain.Message, error) {
	// 先取最新 limit 筆再反轉為升冪
	rows, err := r.db.Query(ctx,
		`SELECT `+messageColumns+` FROM (
			SELECT `+messageColumns+` FROM chat_messages
			WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
			ORDER BY created_at DESC, id DESC
			LIMIT $3
		) latest
		ORDER BY created_at ASC, id ASC`,
		userA, userB, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]domain.Message, 0, limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func scanMessage(rows pgx.Rows) (domain.Message, error) {
	var (
		m           domain.Message
		clientMsgID *string
	)
	if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &clientMsgID, &m.CreatedAt, &m.IsRead); err != nil {
		return m, fmt.Errorf("scan chat message: %w", err)
	}
	if clientMsgID != nil {
		m.ClientMsgID = *clientMsgID
	}
	return m, nil
}

func (r *messageRepository) MarkRead(ctx context.Context, senderID, receiverID string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		"UPDATE chat_messages SET is_read = true WHERE sender_id = $1 AND receiver_id = $2 AND is_read = false",
		senderID, receiverID)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *messageRepository) UnreadCountFor(ctx context.Context, userID string) (int, error) {
	var n int64
	err := r.db.QueryRow(ctx,
		"SELECT COUNT(*) FROM chat_messages WHERE receiver_id = $1 AND is_read = false",
		userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	return int(n), nil
}

func (r *messageRepository) UnreadBetween(ctx context.Context, viewerID, otherID string) (int, error) {
	var n int64
	err := r.db.QueryRow(ctx,
		"SELECT COUNT(*) FROM chat_messages WHERE sender_id = $1 AND receiver_id = $2 AND is_read = false",
		otherID, viewerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("unread between: %w", err)
	}
	return int(n), nil
}

func (r *messageRepository) Recent(ctx context.Context, viewerID string) ([]domain.ConversationSummary, error) {
	rows, err := r.db.Query(ctx,
		`SELECT other_id, id, sender_id, content, created_at, unread FROM (
			SELECT DISTINCT ON (t.other_id)
				t.other_id, t.id, t.sender_id, t.content, t.created_at,
				(SELECT COUNT(*) FROM chat_messages u
				 WHERE u.sender_id = t.other_id AND u.receiver_id = $1 AND u.is_read = false) AS unread
			FROM (
				SELECT CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END AS other_id,
					id, sender_id, content, created_at
				FROM chat_messages
				WHERE sender_id = $1 OR receiver_id = $1
			) t
			ORDER BY t.other_id, t.created_at DESC, t.id DESC
		) latest
		ORDER BY created_at DESC, id DESC`,
		viewerID)
	if err != nil {
		return nil, fmt.Errorf("recent conversations: %w", err)
	}
	defer rows.Close()

	var summaries []domain.ConversationSummary
	for rows.Next() {
		var (
			s      domain.ConversationSummary
			unread int64
		)
		if err := rows.Scan(&s.OtherUserID, &s.LastMessageID, &s.LastSenderID, &s.LastMessage, &s.LastMessageAt, &unread); err != nil {
			return nil, fmt.Errorf("scan recent conversation: %w", err)
		}
		s.UnreadCount = int(unread)
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}
