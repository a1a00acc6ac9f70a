package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType websocket 事件類型
type EventType string

const (
	// EventJoin client -> server, 綁定連線身份
	EventJoin EventType = "join"
	// EventSendMessage client -> server
	EventSendMessage EventType = "send_message"
	// EventMarkRead client -> server
	EventMarkRead EventType = "mark_read"
	// EventTypingStart client -> server
	EventTypingStart EventType = "typing_start"
	// EventTypingStop client -> server
	EventTypingStop EventType = "typing_stop"
	// EventGetOnlineUsers client -> server
	EventGetOnlineUsers EventType = "get_online_users"

	// EventMessageSent server -> sender
	EventMessageSent EventType = "message_sent"
	// EventNewMessage server -> receiver
	EventNewMessage EventType = "new_message"
	// EventMessagesMarkedRead server -> 原發送者
	EventMessagesMarkedRead EventType = "messages_marked_read"
	// EventConversationUpdated server -> both
	EventConversationUpdated EventType = "conversation_updated"
	// EventUserTyping server -> receiver
	EventUserTyping EventType = "user_typing"
	// EventUserStoppedTyping server -> receiver
	EventUserStoppedTyping EventType = "user_stopped_typing"
	// EventUserConnected presence broadcast
	EventUserConnected EventType = "user_connected"
	// EventUserDisconnected presence broadcast
	EventUserDisconnected EventType = "user_disconnected"
	// EventOnlineUsers 在線名單
	EventOnlineUsers EventType = "online_users"
	// EventError 單一操作失敗
	EventError EventType = "error"

	// EventPing 雙向
	EventPing EventType = "ping"
	// EventPong 雙向
	EventPong EventType = "pong"
)

// Event server -> client 信封
type Event struct {
	Type           EventType            `json:"type"`
	ID             string               `json:"id"`
	ConversationID string               `json:"conversationId,omitempty"`
	Data           *Message             `json:"data,omitempty"`
	Conversation   *ConversationSummary `json:"conversation,omitempty"`
	UserID         string               `json:"userId,omitempty"`
	SenderID       string               `json:"senderId,omitempty"`
	ReceiverID     string               `json:"receiverId,omitempty"`
	ReaderID       string               `json:"readerId,omitempty"`
	Users          []string             `json:"users,omitempty"`
	ClientMsgID    string               `json:"clientMsgId,omitempty"`
	Error          string               `json:"error,omitempty"`
	Timestamp      time.Time            `json:"timestamp"`
}

// NewEvent 一般事件, id 為 uuid
func NewEvent(t EventType) Event {
	return Event{Type: t, ID: uuid.NewString(), Timestamp: time.Now().UTC()}
}

// NewMessageEvent 訊息事件 id 固定為 <type>:<messageId>, 重送時 client 可辨識
func NewMessageEvent(t EventType, conversationID string, msg Message) Event {
	return Event{
		Type:           t,
		ID:             MessageEventID(t, msg.ID),
		ConversationID: conversationID,
		Data:           &msg,
		SenderID:       msg.SenderID,
		ReceiverID:     msg.ReceiverID,
		ClientMsgID:    msg.ClientMsgID,
		Timestamp:      time.Now().UTC(),
	}
}

// MessageEventID message event id
func MessageEventID(t EventType, messageID int64) string {
	return fmt.Sprintf("%s:%d", t, messageID)
}

// NewErrorEvent error event, clientMsgID 讓 client 標記對應的待送訊息
func NewErrorEvent(err error, clientMsgID string) Event {
	ev := NewEvent(EventError)
	ev.Error = err.Error()
	ev.ClientMsgID = clientMsgID
	return ev
}

// WSRequest client -> server 請求
type WSRequest struct {
	Type        EventType `json:"type"`
	UserID      string    `json:"userId,omitempty"`
	ReceiverID  string    `json:"receiverId,omitempty"`
	SenderID    string    `json:"senderId,omitempty"`
	Content     string    `json:"content,omitempty"`
	ClientMsgID string    `json:"clientMsgId,omitempty"`
}
