package domain

import "time"

// Message 一則私訊, Content 在記憶體中為明文, 落地時為加密字串
type Message struct {
	ID          int64     `json:"id"`
	SenderID    string    `json:"senderId"`
	ReceiverID  string    `json:"receiverId"`
	Content     string    `json:"content"`
	ClientMsgID string    `json:"clientMsgId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	IsRead      bool      `json:"isRead"`
	// Undecryptable 解密失敗, Content 已替換為 placeholder
	Undecryptable bool `json:"undecryptable,omitempty"`
}

// CounterpartOf 由 viewer 角度取得對方 id
func (m Message) CounterpartOf(viewerID string) string {
	if m.SenderID == viewerID {
		return m.ReceiverID
	}
	return m.SenderID
}

// ConversationSummary 對話列表的一列, 以對方 id 識別
type ConversationSummary struct {
	OtherUserID      string    `json:"otherUserId"`
	OtherUserName    string    `json:"otherUserName,omitempty"`
	OtherUserProfile string    `json:"otherUserProfile,omitempty"`
	OtherUserRole    Role      `json:"otherUserRole,omitempty"`
	LastMessage      string    `json:"lastMessage"`
	LastMessageID    int64     `json:"lastMessageId"`
	LastSenderID     string    `json:"lastSenderId"`
	LastMessageAt    time.Time `json:"lastMessageAt"`
	UnreadCount      int       `json:"unreadCount"`
	IsOnline         bool      `json:"isOnline"`
}
