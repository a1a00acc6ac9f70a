package chatclient

import (
	"sort"

	"hospital_chat_service/internal/chat/domain"
)

// MergeConfirmed 把 server 確認的訊息併入列表, 回傳新列表與是否有變動.
// 傳入的 slice 不會被修改.
//
//  0. 已有相同 server id 的確認訊息: 重複
//  1. clientMsgId 相同 (含重試前用過的) 的 speculative entry, 或同 sender 同內容且
//     clientMsgId 相容的 speculative entry: 替換後依 createdAt 穩定排序
//  2. 相同 clientMsgId, 或同 sender 同內容且時間差在 DuplicateWindow 內: 重複
//  3. 其餘 append 後依 createdAt 穩定排序
func MergeConfirmed(entries []Entry, msg domain.Message) ([]Entry, bool) {
	for _, e := range entries {
		if e.Kind == Confirmed && e.Message.ID == msg.ID {
			return entries, false
		}
	}

	if i := speculativeMatch(entries, msg); i >= 0 {
		out := cloneEntries(entries)
		out[i] = Entry{Kind: Confirmed, LocalID: entries[i].LocalID, Message: msg}
		sortEntries(out)
		return out, true
	}

	for _, e := range entries {
		if e.Kind == Confirmed && isRedelivery(e.Message, msg) {
			return entries, false
		}
	}

	out := append(cloneEntries(entries), Entry{Kind: Confirmed, Message: msg})
	sortEntries(out)
	return out, true
}

// speculativeMatch clientMsgId 相同時不比對內容, server 會修剪空白
func speculativeMatch(entries []Entry, msg domain.Message) int {
	if msg.ClientMsgID != "" {
		for i, e := range entries {
			if e.Kind == Speculative && e.Message.SenderID == msg.SenderID && e.usedClientMsgID(msg.ClientMsgID) {
				return i
			}
		}
	}
	for i, e := range entries {
		if e.Kind != Speculative || e.Message.SenderID != msg.SenderID || e.Message.Content != msg.Content {
			continue
		}
		if msg.ClientMsgID == "" || e.Message.ClientMsgID == "" {
			return i
		}
	}
	return -1
}

func isRedelivery(existing, msg domain.Message) bool {
	if existing.SenderID != msg.SenderID {
		return false
	}
	if msg.ClientMsgID != "" && existing.ClientMsgID == msg.ClientMsgID {
		return true
	}
	if existing.Content != msg.Content {
		return false
	}
	d := existing.CreatedAt.Sub(msg.CreatedAt)
	if d < 0 {
		d = -d
	}
	return d <= DuplicateWindow
}

// AppendSpeculative speculative entry 一樣走排序, 本地時間通常是最新
func AppendSpeculative(entries []Entry, e Entry) []Entry {
	out := append(cloneEntries(entries), e)
	sortEntries(out)
	return out
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Message.CreatedAt.Before(entries[j].Message.CreatedAt)
	})
}

func cloneEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries), len(entries)+1)
	copy(out, entries)
	return out
}
