package app

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"hospital_chat_service/internal/chat/domain"
	"hospital_chat_service/pkg/config"
	"hospital_chat_service/pkg/logger"
	"hospital_chat_service/pkg/middlewares"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

var errInternal = errors.New("internal error, please retry")

// ChatService gateway 需要的用例
type ChatService interface {
	Send(ctx context.Context, sender Identity, req SendRequest) (*SendResult, error)
	MarkRead(ctx context.Context, readerID, senderID string) (int64, error)
	ConversationSummary(ctx context.Context, viewerID, otherID string) (domain.ConversationSummary, error)
	NotifyOffline(ctx context.Context, res *SendResult)
	AuditPresence(ctx context.Context, userID string, online bool)
}

// Gateway websocket 連線入口與事件分派
type Gateway struct {
	chat     ChatService
	presence *PresenceRegistry
	cfg      config.GatewayConfig
}

// NewGateway create Gateway
func NewGateway(chat ChatService, presence *PresenceRegistry, cfg config.GatewayConfig) *Gateway {
	return &Gateway{
		chat:     chat,
		presence: presence,
		cfg:      cfg.WithDefaults(),
	}
}

// HandleConnection 是 WebSocket 連線的進入點, JWTMiddleware 已驗證身份
func (g *Gateway) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	userID, _ := conn.Locals(middlewares.TokenMemberID).(string)
	role, _ := conn.Locals(middlewares.TokenRole).(string)
	if userID == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthenticated"))
		_ = conn.Close()
		return
	}
	g.Serve(ctx, conn, Identity{UserID: userID, Role: domain.ParseRole(role)})
}

// Serve 讀取迴圈, 連線結束才返回
func (g *Gateway) Serve(ctx context.Context, conn wsConn, id Identity) {
	c := newConnection(conn, id.UserID, g.cfg)
	s := &session{g: g, conn: c, identity: id}
	go c.writeLoop()

	logger.Log.Info("websocket open", zap.String("userID", id.UserID), zap.String("connID", c.ID()))

	defer func() {
		c.Close()
		<-c.writerDone
		if s.joined && g.presence.Leave(ctx, c) {
			g.chat.AuditPresence(ctx, id.UserID, false)
		}
		logger.Log.Info("websocket close", zap.String("userID", id.UserID), zap.String("connID", c.ID()))
	}()

	_ = conn.SetReadDeadline(time.Now().Add(g.cfg.PongWait))
	// server 發出 ping 後 client 回 pong
	conn.SetPongHandler(func(string) error {
		s.alive()
		return nil
	})
	// client 發出 ping, 自行回 pong 並更新活動時間
	conn.SetPingHandler(func(appData string) error {
		s.alive()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(g.cfg.WriteWait))
	})

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				logger.Log.Debug("websocket closed by client", zap.String("userID", id.UserID))
			} else {
				logger.Log.Debug("websocket read error", zap.String("userID", id.UserID), zap.Error(err))
			}
			return
		}
		s.alive()

		if mt != websocket.TextMessage {
			continue
		}
		if !s.handle(ctx, data) {
			return
		}
	}
}

// RunReaper 定期移除沒有心跳的連線, ctx 結束時返回
func (g *Gateway) RunReaper(ctx context.Context) {
	ticker := time.NewTicker(g.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, userID := range g.presence.Reap(ctx, g.cfg.PongWait) {
				logger.Log.Info("presence reaped", zap.String("userID", userID))
				g.chat.AuditPresence(ctx, userID, false)
			}
		}
	}
}

// DeliverSent 訊息確認後的推送; origin 為發送端連線, REST 時為 nil
func (g *Gateway) DeliverSent(ctx context.Context, res *SendResult, origin Handle) {
	msg := res.Message
	ack := domain.NewMessageEvent(domain.EventMessageSent, msg.ReceiverID, msg)
	if origin != nil {
		origin.Send(ack)
	} else {
		g.presence.Deliver(msg.SenderID, ack)
	}
	if res.Duplicate {
		return
	}

	if !g.presence.Deliver(msg.ReceiverID, domain.NewMessageEvent(domain.EventNewMessage, msg.SenderID, msg)) {
		g.chat.NotifyOffline(ctx, res)
	}

	g.pushConversation(ctx, msg.SenderID, msg.ReceiverID, origin)
	g.pushConversation(ctx, msg.ReceiverID, msg.SenderID, nil)
}

// DeliverRead 通知原發送者訊息已被讀取, 並更新讀者自己的對話摘要
func (g *Gateway) DeliverRead(ctx context.Context, readerID, senderID string, origin Handle) {
	ev := domain.NewEvent(domain.EventMessagesMarkedRead)
	ev.ConversationID = readerID
	ev.ReaderID = readerID
	ev.SenderID = senderID
	g.presence.Deliver(senderID, ev)

	g.pushConversation(ctx, readerID, senderID, origin)
}

func (g *Gateway) pushConversation(ctx context.Context, viewerID, otherID string, origin Handle) {
	if origin == nil && !g.presence.IsOnline(viewerID) {
		return
	}

	summary, err := g.chat.ConversationSummary(ctx, viewerID, otherID)
	if err != nil {
		return
	}

	ev := domain.NewEvent(domain.EventConversationUpdated)
	ev.ConversationID = otherID
	ev.Conversation = &summary
	if origin != nil {
		origin.Send(ev)
		return
	}
	g.presence.Deliver(viewerID, ev)
}

// session 單一連線的狀態: Unauthenticated -> Joined -> Closed
type session struct {
	g          *Gateway
	conn       *Connection
	identity   Identity
	joined     bool
	rejections int
}

func (s *session) alive() {
	_ = s.conn.conn.SetReadDeadline(time.Now().Add(s.g.cfg.PongWait))
	if s.joined {
		s.g.presence.Touch(s.identity.UserID)
	}
}

// handle 回傳 false 代表要關閉連線
func (s *session) handle(ctx context.Context, data []byte) (keep bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("websocket handler panic", zap.Any("panic", r), zap.String("userID", s.identity.UserID))
			s.conn.Send(domain.NewErrorEvent(errInternal, ""))
			keep = true
		}
	}()

	var req domain.WSRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.conn.Send(domain.NewErrorEvent(domain.ErrMalformedRequest, ""))
		return true
	}

	if !s.joined && req.Type != domain.EventJoin {
		return s.reject(domain.ErrNotJoined, req.ClientMsgID)
	}

	switch req.Type {
	case domain.EventJoin:
		return s.join(ctx, req)
	case domain.EventSendMessage:
		return s.sendMessage(ctx, req)
	case domain.EventMarkRead:
		return s.markRead(ctx, req)
	case domain.EventTypingStart:
		s.typing(req, domain.EventUserTyping)
	case domain.EventTypingStop:
		s.typing(req, domain.EventUserStoppedTyping)
	case domain.EventPing:
		s.conn.Send(domain.NewEvent(domain.EventPong))
	case domain.EventGetOnlineUsers:
		s.sendOnlineUsers()
	default:
		s.conn.Send(domain.NewErrorEvent(domain.ErrUnknownEvent, ""))
	}
	return true
}

// reject 授權失敗, 超過上限視為濫用並關閉連線
func (s *session) reject(err error, clientMsgID string) bool {
	s.rejections++
	rejectedRequests.WithLabelValues(err.Error()).Inc()
	logger.Log.Warn("websocket operation rejected",
		zap.String("userID", s.identity.UserID),
		zap.Int("rejections", s.rejections),
		zap.Error(err))

	s.conn.Send(domain.NewErrorEvent(err, clientMsgID))
	if s.rejections > s.g.cfg.MaxRejections {
		s.conn.closeWith(websocket.ClosePolicyViolation, "too many rejected operations", true)
		return false
	}
	return true
}

func (s *session) fail(err error, clientMsgID string) bool {
	switch {
	case domain.IsAuthorization(err):
		return s.reject(err, clientMsgID)
	case domain.IsValidation(err), errors.Is(err, domain.ErrUserNotFound):
		s.conn.Send(domain.NewErrorEvent(err, clientMsgID))
	default:
		s.conn.Send(domain.NewErrorEvent(errInternal, clientMsgID))
	}
	return true
}

func (s *session) join(ctx context.Context, req domain.WSRequest) bool {
	if req.UserID != "" && req.UserID != s.identity.UserID {
		return s.reject(domain.ErrIdentityMismatch, "")
	}

	if !s.joined {
		s.joined = true
		s.g.presence.Join(ctx, s.conn)
		s.g.chat.AuditPresence(ctx, s.identity.UserID, true)
	}
	s.sendOnlineUsers()
	return true
}

func (s *session) sendMessage(ctx context.Context, req domain.WSRequest) bool {
	res, err := s.g.chat.Send(ctx, s.identity, SendRequest{
		ReceiverID:  req.ReceiverID,
		Content:     req.Content,
		ClientMsgID: req.ClientMsgID,
	})
	if err != nil {
		return s.fail(err, req.ClientMsgID)
	}

	s.g.DeliverSent(ctx, res, s.conn)
	return true
}

func (s *session) markRead(ctx context.Context, req domain.WSRequest) bool {
	if _, err := s.g.chat.MarkRead(ctx, s.identity.UserID, req.SenderID); err != nil {
		return s.fail(err, "")
	}

	s.g.DeliverRead(ctx, s.identity.UserID, req.SenderID, s.conn)
	return true
}

// typing 不保存, 對方不在線直接丟棄
func (s *session) typing(req domain.WSRequest, t domain.EventType) {
	if req.ReceiverID == "" || req.ReceiverID == s.identity.UserID {
		return
	}

	ev := domain.NewEvent(t)
	ev.ConversationID = s.identity.UserID
	ev.UserID = s.identity.UserID
	ev.SenderID = s.identity.UserID
	ev.ReceiverID = req.ReceiverID
	s.g.presence.Deliver(req.ReceiverID, ev)
}

func (s *session) sendOnlineUsers() {
	ev := domain.NewEvent(domain.EventOnlineUsers)
	ev.Users = s.g.presence.Snapshot()
	s.conn.Send(ev)
}
