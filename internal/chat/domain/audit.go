package domain

import "time"

// AuditAction 稽核動作
type AuditAction string

const (
	// AuditSend 送出訊息
	AuditSend AuditAction = "send"
	// AuditMarkRead 已讀
	AuditMarkRead AuditAction = "mark_read"
	// AuditJoin 上線
	AuditJoin AuditAction = "join"
	// AuditLeave 離線
	AuditLeave AuditAction = "leave"
)

// AuditEntry 稽核紀錄, 不含訊息內容
type AuditEntry struct {
	Action    AuditAction `bson:"action" json:"action"`
	ActorID   string      `bson:"actor_id" json:"actorId"`
	TargetID  string      `bson:"target_id,omitempty" json:"targetId,omitempty"`
	MessageID int64       `bson:"message_id,omitempty" json:"messageId,omitempty"`
	Count     int64       `bson:"count,omitempty" json:"count,omitempty"`
	At        time.Time   `bson:"at" json:"at"`
}

// OfflineNotice 收件者不在線時發佈, 不含訊息內容
type OfflineNotice struct {
	MessageID  int64     `json:"messageId"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName,omitempty"`
	ReceiverID string    `json:"receiverId"`
	CreatedAt  time.Time `json:"createdAt"`
}
