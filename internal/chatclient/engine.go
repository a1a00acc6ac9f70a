package chatclient

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"hospital_chat_service/internal/chat/domain"
	"hospital_chat_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConnState 連線狀態, UI 依此顯示 reconnecting 提示
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateReconnecting ConnState = "reconnecting"
)

var (
	// ErrUnknownEntry 找不到對應的本地訊息
	ErrUnknownEntry = errors.New("unknown local message")
	// ErrNotFailed 只有失敗的訊息可以重試
	ErrNotFailed = errors.New("message has not failed")
	// ErrConnectionLost 送出後連線中斷, 無法確認是否送達
	ErrConnectionLost = errors.New("connection lost before the message was confirmed")
	// ErrGaveUp 重連失敗, 等待中的訊息沒有送出
	ErrGaveUp = errors.New("not delivered: offline")
	// ErrEngineStopped Run 已結束
	ErrEngineStopped = errors.New("engine stopped")
)

// Transport 即時連線, Send 不可阻塞
type Transport interface {
	Send(req domain.WSRequest) error
	Events() <-chan domain.Event
	States() <-chan ConnState
	Reconnect()
}

// Engine 單一 goroutine 擁有 cache, 所有 server 事件與使用者動作依序處理
type Engine struct {
	selfID    string
	transport Transport
	actions   chan func()
	stopped   chan struct{}
	now       func() time.Time

	// 只在 Run goroutine 內存取
	cache  Cache
	outbox []string
	seen   *seenSet

	state    atomic.Value
	snapshot atomic.Pointer[Cache]

	mu   sync.Mutex
	subs []chan Cache
}

// NewEngine create a Engine, 需呼叫 Run 才會開始處理
func NewEngine(selfID string, transport Transport) *Engine {
	e := &Engine{
		selfID:    selfID,
		transport: transport,
		actions:   make(chan func(), 64),
		stopped:   make(chan struct{}),
		now:       time.Now,
		cache:     NewCache(selfID),
		seen:      newSeenSet(100),
	}
	e.state.Store(StateConnecting)
	e.snapshot.Store(&e.cache)
	return e
}

// Run 事件迴圈, ctx 結束時返回
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.stopped)

	events := e.transport.Events()
	states := e.transport.States()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-e.actions:
			fn()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			e.handleEvent(ev)
		case st, ok := <-states:
			if !ok {
				states = nil
				continue
			}
			e.handleState(st)
		}
	}
}

// Send 立即加入 speculative entry 並送出, 回傳 local id
func (e *Engine) Send(receiverID, content string) (string, error) {
	if strings.TrimSpace(receiverID) == "" {
		return "", domain.ErrMissingReceiver
	}
	// 與 server 落地的內容一致
	content = strings.TrimSpace(content)
	if content == "" {
		return "", domain.ErrEmptyContent
	}

	localID := "local-" + uuid.NewString()
	entry := Entry{
		Kind:    Speculative,
		LocalID: localID,
		Message: domain.Message{
			SenderID:    e.selfID,
			ReceiverID:  receiverID,
			Content:     content,
			ClientMsgID: uuid.NewString(),
			CreatedAt:   e.now().UTC(),
		},
		Queued: true,
	}

	return localID, e.post(func() {
		e.cache = AddSpeculative(e.cache, entry)
		if e.IsConnected() {
			e.dispatch(entry)
		} else {
			e.outbox = append(e.outbox, localID)
		}
		e.publish()
	})
}

// Retry 失敗訊息重新送出, 使用新的 clientMsgId
func (e *Engine) Retry(localID string) error {
	entry, ok := e.Snapshot().FindLocal(localID)
	if !ok {
		return ErrUnknownEntry
	}
	if !entry.Failed() {
		return ErrNotFailed
	}

	return e.post(func() {
		current, ok := e.cache.FindLocal(localID)
		if !ok || !current.Failed() {
			return
		}
		cid := uuid.NewString()
		e.cache = PrepareRetry(e.cache, localID, cid, true)
		current.Message.ClientMsgID = cid
		if e.IsConnected() {
			e.dispatch(current)
		} else {
			e.outbox = append(e.outbox, localID)
		}
		e.publish()
	})
}

// MarkRead 標記 peer 的訊息已讀
func (e *Engine) MarkRead(peerID string) error {
	return e.post(func() {
		e.cache = MarkReadInCache(e.cache, peerID)
		e.sendBestEffort(domain.WSRequest{Type: domain.EventMarkRead, SenderID: peerID})
		e.publish()
	})
}

// StartTyping 不保證送達
func (e *Engine) StartTyping(peerID string) error {
	return e.post(func() {
		e.sendBestEffort(domain.WSRequest{Type: domain.EventTypingStart, ReceiverID: peerID})
	})
}

// StopTyping 不保證送達
func (e *Engine) StopTyping(peerID string) error {
	return e.post(func() {
		e.sendBestEffort(domain.WSRequest{Type: domain.EventTypingStop, ReceiverID: peerID})
	})
}

// RetryConnection 手動重連
func (e *Engine) RetryConnection() {
	e.transport.Reconnect()
}

// ConnState current state
func (e *Engine) ConnState() ConnState {
	return e.state.Load().(ConnState)
}

// IsConnected connected and joined
func (e *Engine) IsConnected() bool {
	return e.ConnState() == StateConnected
}

// Snapshot 最近一次發佈的 cache, 可在任何 goroutine 讀取
func (e *Engine) Snapshot() Cache {
	return *e.snapshot.Load()
}

// Subscribe 每次 cache 變動時送出最新值, 讀取太慢時只保留最新的一筆
func (e *Engine) Subscribe() <-chan Cache {
	ch := make(chan Cache, 1)
	e.mu.Lock()
	e.subs = append(e.subs, ch)
	e.mu.Unlock()
	return ch
}

func (e *Engine) post(fn func()) error {
	select {
	case <-e.stopped:
		return ErrEngineStopped
	default:
	}
	select {
	case e.actions <- fn:
		return nil
	case <-e.stopped:
		return ErrEngineStopped
	}
}

func (e *Engine) handleEvent(ev domain.Event) {
	if ev.ID != "" && e.seen.Seen(ev.ID) {
		logger.Log.Debug("duplicate event dropped", zap.String("id", ev.ID), zap.String("type", string(ev.Type)))
		return
	}
	e.cache = Reduce(e.cache, ev)
	e.publish()
}

func (e *Engine) handleState(st ConnState) {
	e.state.Store(st)
	logger.Log.Info("chat connection state", zap.String("state", string(st)))

	switch st {
	case StateConnected:
		e.flush()
	case StateConnecting, StateReconnecting:
		e.cache = FailInFlight(e.cache, ErrConnectionLost.Error())
	case StateDisconnected:
		e.cache = FailInFlight(e.cache, ErrConnectionLost.Error())
		e.cache = FailQueued(e.cache, ErrGaveUp.Error())
		e.outbox = nil
	}
	e.publish()
}

// flush 連線後依序送出等待中的訊息
func (e *Engine) flush() {
	pending := e.outbox
	e.outbox = nil
	for _, localID := range pending {
		entry, ok := e.cache.FindLocal(localID)
		if !ok || entry.Kind != Speculative || !entry.Queued {
			continue
		}
		e.dispatch(entry)
	}
}

func (e *Engine) dispatch(entry Entry) {
	msg := entry.Message
	err := e.transport.Send(domain.WSRequest{
		Type:        domain.EventSendMessage,
		ReceiverID:  msg.ReceiverID,
		Content:     msg.Content,
		ClientMsgID: msg.ClientMsgID,
	})
	if err != nil {
		logger.Log.Warn("send message failed", zap.String("localID", entry.LocalID), zap.Error(err))
		e.cache = MarkFailed(e.cache, entry.LocalID, err.Error())
		return
	}
	e.cache = MarkQueued(e.cache, entry.LocalID, false)
}

func (e *Engine) sendBestEffort(req domain.WSRequest) {
	if !e.IsConnected() {
		return
	}
	if err := e.transport.Send(req); err != nil {
		logger.Log.Debug("request dropped", zap.String("type", string(req.Type)), zap.Error(err))
	}
}

func (e *Engine) publish() {
	c := e.cache
	e.snapshot.Store(&c)

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- c:
		default:
			// 丟掉舊的, 保留最新
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- c:
			default:
			}
		}
	}
}
