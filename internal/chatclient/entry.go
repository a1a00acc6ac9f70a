package chatclient

import (
	"time"

	"hospital_chat_service/internal/chat/domain"
)

// Kind 訊息在 client cache 中的狀態
type Kind int

const (
	// Speculative 本地送出, 尚未收到 server 確認
	Speculative Kind = iota
	// Confirmed server 已落地的訊息
	Confirmed
)

func (k Kind) String() string {
	if k == Speculative {
		return "speculative"
	}
	return "confirmed"
}

// DuplicateWindow 同 sender 同內容在此時間內視為重送
const DuplicateWindow = 5 * time.Second

// Entry 對話列表中的一則訊息
//
// Speculative entry 沒有 server id, 以 LocalID 識別; 確認後 LocalID 保留,
// UI 可以用它維持同一個 bubble.
type Entry struct {
	Kind    Kind
	LocalID string
	Message domain.Message
	// Error 送出失敗原因, 非空時 UI 顯示重試
	Error string
	// Queued 斷線時送出, 等待下次連線
	Queued bool
	// PriorClientMsgIDs 重試前用過的 clientMsgId, 前一次送出晚到的確認仍可對上
	PriorClientMsgIDs []string
}

func (e Entry) usedClientMsgID(cid string) bool {
	if e.Message.ClientMsgID == cid {
		return true
	}
	for _, prior := range e.PriorClientMsgIDs {
		if prior == cid {
			return true
		}
	}
	return false
}

// InFlight 已送出但還沒有確認或失敗
func (e Entry) InFlight() bool {
	return e.Kind == Speculative && !e.Queued && e.Error == ""
}

// Failed 送出失敗
func (e Entry) Failed() bool {
	return e.Kind == Speculative && e.Error != ""
}
