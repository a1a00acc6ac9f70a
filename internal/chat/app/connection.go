package app

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"hospital_chat_service/internal/chat/domain"
	"hospital_chat_service/pkg/config"
	"hospital_chat_service/pkg/logger"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// wsConn *websocket.Conn 中 gateway 用到的方法
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	SetPingHandler(h func(appData string) error)
	Close() error
}

// Connection 一條 websocket 連線, 只有 writeLoop 會寫資料
type Connection struct {
	id     string
	userID string
	conn   wsConn
	cfg    config.GatewayConfig

	send       chan domain.Event
	done       chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
	retired    atomic.Bool

	closeCode   int
	closeReason string
	// flush 關閉前先寫出佇列中的事件 (例如最後一個 error event)
	flush bool
}

func newConnection(conn wsConn, userID string, cfg config.GatewayConfig) *Connection {
	return &Connection{
		id:         uuid.NewString(),
		userID:     userID,
		conn:       conn,
		cfg:        cfg,
		send:       make(chan domain.Event, cfg.SendBuffer),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
		closeCode:  websocket.CloseNormalClosure,
	}
}

// ID connection id
func (c *Connection) ID() string { return c.id }

// UserID token 內的 user
func (c *Connection) UserID() string { return c.userID }

// Send 放入寫出佇列, 佇列滿代表 client 讀太慢, 直接斷線
func (c *Connection) Send(ev domain.Event) bool {
	if c.retired.Load() {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- ev:
		return true
	default:
		droppedEvents.WithLabelValues("slow_consumer").Inc()
		logger.Log.Warn("websocket send buffer full, closing", zap.String("userID", c.userID), zap.String("connID", c.id))
		c.closeWith(websocket.ClosePolicyViolation, "slow consumer", false)
		return false
	}
}

// Retire 被新連線取代
func (c *Connection) Retire() {
	c.retired.Store(true)
	c.closeWith(websocket.CloseNormalClosure, "replaced by a newer connection", false)
}

// Close 結束連線, 可重複呼叫
func (c *Connection) Close() {
	c.closeWith(websocket.CloseNormalClosure, "", false)
}

func (c *Connection) closeWith(code int, reason string, flush bool) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		c.flush = flush
		close(c.done)
	})
}

// writeLoop 依序寫出事件並定期送 ping, 結束時關閉底層連線讓 read 返回
func (c *Connection) writeLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		close(c.writerDone)
	}()

	for {
		select {
		case ev := <-c.send:
			if err := c.writeEvent(ev); err != nil {
				logger.Log.Debug("websocket write failed", zap.String("userID", c.userID), zap.Error(err))
				c.Close()
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteWait)); err != nil {
				logger.Log.Debug("websocket ping failed", zap.String("userID", c.userID), zap.Error(err))
				c.Close()
				return
			}

		case <-c.done:
			if c.flush {
				c.drain()
			}
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(c.closeCode, c.closeReason),
				time.Now().Add(c.cfg.WriteWait))
			return
		}
	}
}

func (c *Connection) drain() {
	for {
		select {
		case ev := <-c.send:
			if err := c.writeEvent(ev); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Connection) writeEvent(ev domain.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		logger.Log.Error("marshal event failed", zap.String("type", string(ev.Type)), zap.Error(err))
		return nil
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return err
	}
	deliveredEvents.WithLabelValues(string(ev.Type)).Inc()
	return nil
}
