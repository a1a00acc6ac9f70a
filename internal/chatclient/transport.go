package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"hospital_chat_service/internal/chat/domain"
	"hospital_chat_service/pkg/logger"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

var (
	// ErrNotConnected 尚未完成 join
	ErrNotConnected = errors.New("not connected")
	// ErrSendBufferFull 送出佇列已滿
	ErrSendBufferFull = errors.New("send buffer full")
)

// TransportConfig websocket 連線設定
type TransportConfig struct {
	// URL 例如 ws://localhost:8080/chat/ws
	URL    string
	Token  string
	UserID string

	HeartbeatInterval    time.Duration
	WriteTimeout         time.Duration
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	MaxReconnectAttempts int
	SendBuffer           int
}

func (c *TransportConfig) defaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 25 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = time.Second
	}
	if c.ReconnectMaxDelay <= 0 {
		c.ReconnectMaxDelay = 5 * time.Second
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
}

// reconnector exponential backoff + jitter
type reconnector struct {
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	attempt     int
}

func (r *reconnector) shouldReconnect() bool {
	return r.attempt < r.maxAttempts
}

func (r *reconnector) nextDelay() time.Duration {
	jitter := time.Duration(rand.Float64() * float64(r.baseDelay) * 0.5)
	delay := time.Duration(math.Min(
		float64(r.baseDelay)*math.Pow(2, float64(r.attempt))+float64(jitter),
		float64(r.maxDelay),
	))
	r.attempt++
	return delay
}

func (r *reconnector) reset() {
	r.attempt = 0
}

// WSTransport 以 nhooyr websocket 連到 /chat/ws, 斷線自動重連
type WSTransport struct {
	cfg    TransportConfig
	events chan domain.Event
	states chan ConnState
	out    chan domain.WSRequest
	manual chan struct{}
	recon  *reconnector

	mu    sync.Mutex
	state ConnState
}

// NewWSTransport create a WSTransport, 需呼叫 Run
func NewWSTransport(cfg TransportConfig) *WSTransport {
	cfg.defaults()
	return &WSTransport{
		cfg:    cfg,
		events: make(chan domain.Event, 64),
		states: make(chan ConnState, 8),
		out:    make(chan domain.WSRequest, cfg.SendBuffer),
		manual: make(chan struct{}, 1),
		recon: &reconnector{
			baseDelay:   cfg.ReconnectBaseDelay,
			maxDelay:    cfg.ReconnectMaxDelay,
			maxAttempts: cfg.MaxReconnectAttempts,
		},
		state: StateDisconnected,
	}
}

// Events server 事件
func (t *WSTransport) Events() <-chan domain.Event { return t.events }

// States 連線狀態變化
func (t *WSTransport) States() <-chan ConnState { return t.states }

// Send 只排入佇列, 由 writer 寫出
func (t *WSTransport) Send(req domain.WSRequest) error {
	if t.State() != StateConnected {
		return ErrNotConnected
	}
	select {
	case t.out <- req:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Reconnect 放棄重連後由使用者手動觸發, 重新計算 backoff
func (t *WSTransport) Reconnect() {
	select {
	case t.manual <- struct{}{}:
	default:
	}
}

// State current state
func (t *WSTransport) State() ConnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *WSTransport) setState(st ConnState) {
	t.mu.Lock()
	if t.state == st {
		t.mu.Unlock()
		return
	}
	t.state = st
	t.mu.Unlock()

	select {
	case t.states <- st:
	default:
		logger.Log.Warn("state change dropped", zap.String("state", string(st)))
	}
}

// Run 連線迴圈, ctx 結束時返回
func (t *WSTransport) Run(ctx context.Context) error {
	t.setState(StateConnecting)
	for {
		err := t.connectAndServe(ctx)
		if ctx.Err() != nil {
			t.setState(StateDisconnected)
			return ctx.Err()
		}
		logger.Log.Warn("chat connection ended", zap.Error(err))

		if !t.recon.shouldReconnect() {
			t.setState(StateDisconnected)
			// 等使用者手動重連
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.manual:
				t.recon.reset()
				t.setState(StateConnecting)
				continue
			}
		}

		t.setState(StateReconnecting)
		delay := t.recon.nextDelay()
		logger.Log.Info("chat reconnecting", zap.Int("attempt", t.recon.attempt), zap.Duration("delay", delay))
		select {
		case <-ctx.Done():
			t.setState(StateDisconnected)
			return ctx.Err()
		case <-time.After(delay):
		case <-t.manual:
			t.recon.reset()
		}
	}
}

func (t *WSTransport) dialURL() (string, error) {
	u, err := url.Parse(t.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse chat url: %w", err)
	}
	q := u.Query()
	q.Set("auth", t.cfg.Token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (t *WSTransport) connectAndServe(ctx context.Context) error {
	target, err := t.dialURL()
	if err != nil {
		return err
	}

	conn, _, err := websocket.Dial(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := t.write(connCtx, conn, domain.WSRequest{Type: domain.EventJoin, UserID: t.cfg.UserID}); err != nil {
		return err
	}

	writeErr := make(chan error, 1)
	go func() {
		writeErr <- t.writeLoop(connCtx, conn)
	}()

	readErr := t.readLoop(connCtx, conn)
	cancel()
	t.drain()
	if err := <-writeErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return readErr
}

// readLoop 收到 online_users 表示 join 完成
func (t *WSTransport) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var ev domain.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			logger.Log.Debug("malformed event ignored", zap.Error(err))
			continue
		}

		if ev.Type == domain.EventOnlineUsers && t.State() != StateConnected {
			t.recon.reset()
			t.setState(StateConnected)
		}

		select {
		case t.events <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (t *WSTransport) writeLoop(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(t.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-t.out:
			if err := t.write(ctx, conn, req); err != nil {
				conn.Close(websocket.StatusGoingAway, "write failed")
				return err
			}
		case <-ticker.C:
			if err := t.write(ctx, conn, domain.WSRequest{Type: domain.EventPing}); err != nil {
				conn.Close(websocket.StatusGoingAway, "heartbeat failed")
				return err
			}
		}
	}
}

func (t *WSTransport) write(ctx context.Context, conn *websocket.Conn, req domain.WSRequest) error {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.WriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, req)
}

// drain 舊連線沒寫出的請求不帶到下一條連線
func (t *WSTransport) drain() {
	for {
		select {
		case <-t.out:
		default:
			return
		}
	}
}
