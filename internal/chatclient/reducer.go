package chatclient

import (
	"hospital_chat_service/internal/chat/domain"
)

// ApplyMessage 把確認訊息併入對應對話, 有新增時同步更新摘要
func ApplyMessage(c Cache, msg domain.Message) Cache {
	peerID := msg.CounterpartOf(c.SelfID)
	conv := c.conversation(peerID)

	entries, changed := MergeConfirmed(conv.Entries, msg)
	if !changed {
		return c
	}
	isNew := len(entries) > len(conv.Entries)
	conv.Entries = entries
	if msg.SenderID == peerID {
		conv.PeerTyping = false
	}
	// speculative 替換時不是新訊息, 不累加未讀
	return BumpConversation(c.with(conv), msg, isNew)
}

// AddSpeculative 本地送出的訊息立即出現在列表與摘要
func AddSpeculative(c Cache, e Entry) Cache {
	e.Kind = Speculative
	conv := c.conversation(e.Message.ReceiverID)
	conv.Entries = AppendSpeculative(conv.Entries, e)
	c = c.with(conv)
	return BumpConversation(c, e.Message, false)
}

// BumpConversation 以訊息更新摘要; countUnread 時收到的未讀訊息會累加未讀數
func BumpConversation(c Cache, msg domain.Message, countUnread bool) Cache {
	peerID := msg.CounterpartOf(c.SelfID)
	conv := c.conversation(peerID)
	s := conv.Summary

	if !msg.CreatedAt.Before(s.LastMessageAt) {
		s.LastMessage = msg.Content
		s.LastMessageID = msg.ID
		s.LastSenderID = msg.SenderID
		s.LastMessageAt = msg.CreatedAt
	}
	if countUnread && msg.ReceiverID == c.SelfID && !msg.IsRead {
		s.UnreadCount++
	}
	conv.Summary = s
	return c.with(conv)
}

// ApplyConversationUpdate server 算好的摘要, 覆蓋本地值
func ApplyConversationUpdate(c Cache, summary domain.ConversationSummary) Cache {
	if summary.OtherUserID == "" {
		return c
	}
	conv := c.conversation(summary.OtherUserID)
	conv.Summary = summary
	return c.with(conv)
}

// MarkFailed speculative entry 送出失敗
func MarkFailed(c Cache, localID, reason string) Cache {
	return c.updateEntries(func(_ string, e Entry) (Entry, bool) {
		if e.Kind != Speculative || e.LocalID != localID {
			return e, false
		}
		e.Error = reason
		e.Queued = false
		return e, true
	})
}

// MarkFailedByClientMsgID server 回傳 error 時以 clientMsgId 對應
func MarkFailedByClientMsgID(c Cache, clientMsgID, reason string) Cache {
	if clientMsgID == "" {
		return c
	}
	return c.updateEntries(func(_ string, e Entry) (Entry, bool) {
		if e.Kind != Speculative || e.Message.ClientMsgID != clientMsgID {
			return e, false
		}
		e.Error = reason
		e.Queued = false
		return e, true
	})
}

// MarkQueued 切換 entry 是否在等待連線
func MarkQueued(c Cache, localID string, queued bool) Cache {
	return c.updateEntries(func(_ string, e Entry) (Entry, bool) {
		if e.Kind != Speculative || e.LocalID != localID || e.Queued == queued {
			return e, false
		}
		e.Queued = queued
		return e, true
	})
}

// FailInFlight 連線中斷時, 已送出但未確認的訊息標記失敗
func FailInFlight(c Cache, reason string) Cache {
	return c.updateEntries(func(_ string, e Entry) (Entry, bool) {
		if !e.InFlight() {
			return e, false
		}
		e.Error = reason
		return e, true
	})
}

// FailQueued 放棄重連時, 等待中的訊息標記失敗
func FailQueued(c Cache, reason string) Cache {
	return c.updateEntries(func(_ string, e Entry) (Entry, bool) {
		if e.Kind != Speculative || !e.Queued {
			return e, false
		}
		e.Queued = false
		e.Error = reason
		return e, true
	})
}

// PrepareRetry 重試是一次新的送出, 換新的 clientMsgId
func PrepareRetry(c Cache, localID, clientMsgID string, queued bool) Cache {
	return c.updateEntries(func(_ string, e Entry) (Entry, bool) {
		if e.Kind != Speculative || e.LocalID != localID {
			return e, false
		}
		if old := e.Message.ClientMsgID; old != "" && old != clientMsgID {
			e.PriorClientMsgIDs = append(append([]string(nil), e.PriorClientMsgIDs...), old)
		}
		e.Message.ClientMsgID = clientMsgID
		e.Error = ""
		e.Queued = queued
		return e, true
	})
}

// MarkReadInCache 自己讀了 peer 的訊息
func MarkReadInCache(c Cache, peerID string) Cache {
	conv, ok := c.Conversations[peerID]
	if !ok {
		return c
	}
	conv.Entries = markRead(conv.Entries, peerID)
	conv.Summary.UnreadCount = 0
	return c.with(conv)
}

// MarkPeerRead peer 讀了自己送出的訊息
func MarkPeerRead(c Cache, peerID string) Cache {
	conv, ok := c.Conversations[peerID]
	if !ok {
		return c
	}
	conv.Entries = markRead(conv.Entries, c.SelfID)
	return c.with(conv)
}

func markRead(entries []Entry, senderID string) []Entry {
	out := cloneEntries(entries)
	for i, e := range out {
		if e.Kind == Confirmed && e.Message.SenderID == senderID {
			out[i].Message.IsRead = true
		}
	}
	return out
}

// SetTyping peer 輸入中狀態
func SetTyping(c Cache, peerID string, typing bool) Cache {
	conv := c.conversation(peerID)
	if conv.PeerTyping == typing {
		return c
	}
	conv.PeerTyping = typing
	return c.with(conv)
}

// SetOnline 單一使用者上下線
func SetOnline(c Cache, userID string, online bool) Cache {
	next := make(map[string]bool, len(c.Online)+1)
	for k, v := range c.Online {
		next[k] = v
	}
	if online {
		next[userID] = true
	} else {
		delete(next, userID)
	}
	return c.withOnline(next)
}

// SetOnlineUsers 以完整名單取代
func SetOnlineUsers(c Cache, userIDs []string) Cache {
	next := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		next[id] = true
	}
	return c.withOnline(next)
}

// Reduce 套用一個 server 事件, 不認得的類型原樣返回
func Reduce(c Cache, ev domain.Event) Cache {
	switch ev.Type {
	case domain.EventNewMessage, domain.EventMessageSent:
		if ev.Data == nil {
			return c
		}
		return ApplyMessage(c, *ev.Data)
	case domain.EventConversationUpdated:
		if ev.Conversation == nil {
			return c
		}
		return ApplyConversationUpdate(c, *ev.Conversation)
	case domain.EventMessagesMarkedRead:
		return MarkPeerRead(c, ev.ReaderID)
	case domain.EventUserTyping:
		return SetTyping(c, ev.SenderID, true)
	case domain.EventUserStoppedTyping:
		return SetTyping(c, ev.SenderID, false)
	case domain.EventUserConnected:
		return SetOnline(c, ev.UserID, true)
	case domain.EventUserDisconnected:
		return SetOnline(c, ev.UserID, false)
	case domain.EventOnlineUsers:
		return SetOnlineUsers(c, ev.Users)
	case domain.EventError:
		return MarkFailedByClientMsgID(c, ev.ClientMsgID, ev.Error)
	}
	return c
}
