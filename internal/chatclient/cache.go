package chatclient

import (
	"sort"

	"hospital_chat_service/internal/chat/domain"
)

// Conversation 與單一對象的對話
type Conversation struct {
	PeerID     string
	Summary    domain.ConversationSummary
	Entries    []Entry
	PeerTyping bool
}

// Cache client 端可見的狀態, 只透過 reducer 產生新值, 不直接修改
type Cache struct {
	SelfID        string
	Conversations map[string]Conversation
	Online        map[string]bool
}

// NewCache empty cache
func NewCache(selfID string) Cache {
	return Cache{
		SelfID:        selfID,
		Conversations: map[string]Conversation{},
		Online:        map[string]bool{},
	}
}

// Conversation 取得與 peer 的對話
func (c Cache) Conversation(peerID string) (Conversation, bool) {
	conv, ok := c.Conversations[peerID]
	return conv, ok
}

// Entries 與 peer 的訊息列表
func (c Cache) Entries(peerID string) []Entry {
	return c.Conversations[peerID].Entries
}

// Ordered 對話列表, 最新訊息在前
func (c Cache) Ordered() []Conversation {
	out := make([]Conversation, 0, len(c.Conversations))
	for _, conv := range c.Conversations {
		out = append(out, conv)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Summary.LastMessageAt, out[j].Summary.LastMessageAt
		if a.Equal(b) {
			return out[i].PeerID < out[j].PeerID
		}
		return a.After(b)
	})
	return out
}

// UnreadTotal 所有對話未讀總數
func (c Cache) UnreadTotal() int {
	n := 0
	for _, conv := range c.Conversations {
		n += conv.Summary.UnreadCount
	}
	return n
}

// FindLocal 以 LocalID 找 entry
func (c Cache) FindLocal(localID string) (Entry, bool) {
	for _, conv := range c.Conversations {
		for _, e := range conv.Entries {
			if e.LocalID == localID {
				return e, true
			}
		}
	}
	return Entry{}, false
}

func (c Cache) conversation(peerID string) Conversation {
	if conv, ok := c.Conversations[peerID]; ok {
		return conv
	}
	return Conversation{PeerID: peerID, Summary: domain.ConversationSummary{OtherUserID: peerID}}
}

// with 複製 map 後替換單一對話
func (c Cache) with(conv Conversation) Cache {
	convs := make(map[string]Conversation, len(c.Conversations)+1)
	for k, v := range c.Conversations {
		convs[k] = v
	}
	convs[conv.PeerID] = conv
	c.Conversations = convs
	return c
}

func (c Cache) withOnline(online map[string]bool) Cache {
	c.Online = online
	return c
}

// updateEntries 對每個對話套用 fn, 只有回傳 true 的 entry 會被替換
func (c Cache) updateEntries(fn func(peerID string, e Entry) (Entry, bool)) Cache {
	out := c
	for peerID, conv := range c.Conversations {
		var entries []Entry
		for i, e := range conv.Entries {
			next, ok := fn(peerID, e)
			if !ok {
				continue
			}
			if entries == nil {
				entries = cloneEntries(conv.Entries)
			}
			entries[i] = next
		}
		if entries != nil {
			conv.Entries = entries
			out = out.with(conv)
		}
	}
	return out
}
