package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	"hospital_chat_service/internal/chat/domain"
	"hospital_chat_service/internal/chat/repository"
	"hospital_chat_service/pkg/config"
	"hospital_chat_service/pkg/database"
	"hospital_chat_service/pkg/logger"
	"hospital_chat_service/pkg/middlewares"
	testtool "hospital_chat_service/pkg/test_tool"
	"hospital_chat_service/pkg/token"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// **測試用的 chat server (postgres + redis + fiber)**
type chatServer struct {
	addr  string
	uc    *ChatUseCase
	users repository.UserRepository
}

func setupChatServer(t *testing.T) *chatServer {
	t.Helper()
	if testing.Short() {
		t.Skip("skip container test in short mode")
	}
	logger.SetNewNop()
	ctx := context.Background()

	// **啟動 PostgreSQL**
	pgContainer, pgHost, pgPort, err := testtool.SetupContainer(ctx, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "chat",
			"POSTGRES_PASSWORD": "chat",
			"POSTGRES_DB":       "chat",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(ctx) })

	// **啟動 Redis**
	redisContainer, redisHost, redisPort, err := testtool.SetupContainer(ctx, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisContainer.Terminate(ctx) })

	conn := database.Connection{
		ConnectStr:    fmt.Sprintf("postgres://chat:chat@%s:%s/chat", pgHost, pgPort),
		RetryCount:    5,
		RetryInterval: 1,
	}
	gormDB, err := database.NewPGConnection(conn)
	require.NoError(t, err)
	require.NoError(t, repository.Migrate(gormDB))

	pool, err := database.NewDatabaseConnection(ctx, conn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	redisClient, err := database.NewRedisClient(ctx, database.RedisConnection{Addr: redisHost + ":" + redisPort})
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisClient.Close() })

	// **測試資料**
	require.NoError(t, gormDB.Create([]domain.User{
		{ID: "p1", FirstName: "Pat", LastName: "Lee", Email: "pat@example.com", Role: domain.RolePatient, IsActive: true},
		{ID: "p2", FirstName: "Sam", LastName: "Ho", Email: "sam@example.com", Role: domain.RolePatient, IsActive: true},
		{ID: "d1", FirstName: "Dana", LastName: "Wu", Email: "dana@example.com", Role: domain.RoleDoctor, IsActive: true},
	}).Error)

	codec := newTestCodec(t)
	audit := new(MockAuditRepository)
	audit.On("Record", mock.Anything, mock.Anything).Return(nil)

	userRepo := repository.NewUserRepository(gormDB)
	presence := NewPresenceRegistry(userRepo)
	uc := NewChatUseCase(
		NewMessageStore(repository.NewMessageRepository(pool), codec),
		userRepo,
		repository.NewIdempotencyRepository(database.NewRedisRepository[domain.Message](redisClient), time.Hour),
		audit,
		repository.NewStaticAvatarRepository(),
		repository.NewNoopNotifier(),
		presence,
		config.HistoryConfig{},
	)
	gateway := NewGateway(uc, presence, config.GatewayConfig{})
	h := NewChatHandler(uc, gateway)

	// **啟動 Fiber WebSocket Server**
	r := fiber.New()
	chat := r.Group("/chat", middlewares.JWTMiddleware())
	chat.Get("/ws", websocket.New(func(c *websocket.Conn) {
		gateway.HandleConnection(context.Background(), c)
	}))
	chat.Get("/recent", h.Recent)
	chat.Get("/unread/count", h.UnreadCount)
	chat.Get("/:userId", h.History)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = r.Listener(ln) }()
	t.Cleanup(func() { _ = r.Shutdown() })

	return &chatServer{addr: ln.Addr().String(), uc: uc, users: userRepo}
}

type wsClient struct {
	t    *testing.T
	conn *gws.Conn
}

func (s *chatServer) dial(t *testing.T, userID string, role domain.Role) *wsClient {
	t.Helper()
	tok, err := token.GenerateJWT(userID, string(role), "chat-test")
	require.NoError(t, err)

	conn, _, err := gws.DefaultDialer.Dial(fmt.Sprintf("ws://%s/chat/ws?auth=%s", s.addr, tok), nil)
	require.NoError(t, err, "WebSocket 連線失敗")
	t.Cleanup(func() { _ = conn.Close() })

	c := &wsClient{t: t, conn: conn}
	c.send(domain.WSRequest{Type: domain.EventJoin, UserID: userID})
	c.until(domain.EventOnlineUsers)
	return c
}

func (c *wsClient) send(req domain.WSRequest) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(req))
}

func (c *wsClient) until(typ domain.EventType) domain.Event {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, b, err := c.conn.ReadMessage()
		require.NoError(c.t, err)
		var ev domain.Event
		require.NoError(c.t, json.Unmarshal(b, &ev))
		if ev.Type == typ {
			return ev
		}
	}
}

func TestChatIntegration(t *testing.T) {
	s := setupChatServer(t)
	ctx := context.Background()

	patient := s.dial(t, "p1", domain.RolePatient)
	doctor := s.dial(t, "d1", domain.RoleDoctor)

	// ✅ 1️⃣ 上線狀態寫回 users
	u, err := s.users.FindByID(ctx, "d1")
	require.NoError(t, err)
	assert.True(t, u.IsCurrentlyOnline)

	// ✅ 2️⃣ 病患送訊息, 雙方都收到
	patient.send(domain.WSRequest{Type: domain.EventSendMessage, ReceiverID: "d1", Content: "I have a headache", ClientMsgID: "c-1"})
	ack := patient.until(domain.EventMessageSent)
	require.NotNil(t, ack.Data)
	assert.Equal(t, "I have a headache", ack.Data.Content)
	assert.NotZero(t, ack.Data.ID)

	incoming := doctor.until(domain.EventNewMessage)
	assert.Equal(t, ack.Data.ID, incoming.Data.ID)
	assert.Equal(t, "p1", incoming.ConversationID)

	summary := doctor.until(domain.EventConversationUpdated)
	require.NotNil(t, summary.Conversation)
	assert.Equal(t, 1, summary.Conversation.UnreadCount)
	assert.Equal(t, "Pat Lee", summary.Conversation.OtherUserName)

	// ✅ 3️⃣ 同一個 clientMsgId 重送只回確認, 不新增
	patient.send(domain.WSRequest{Type: domain.EventSendMessage, ReceiverID: "d1", Content: "I have a headache", ClientMsgID: "c-1"})
	dup := patient.until(domain.EventMessageSent)
	assert.Equal(t, ack.Data.ID, dup.Data.ID)

	n, err := s.uc.UnreadCount(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// ✅ 4️⃣ 醫師已讀, 病患收到通知
	doctor.send(domain.WSRequest{Type: domain.EventMarkRead, SenderID: "p1"})
	read := patient.until(domain.EventMessagesMarkedRead)
	assert.Equal(t, "d1", read.ReaderID)

	n, err = s.uc.UnreadCount(ctx, "d1")
	require.NoError(t, err)
	assert.Zero(t, n)

	// ✅ 5️⃣ 病患之間不可對話
	patient.send(domain.WSRequest{Type: domain.EventSendMessage, ReceiverID: "p2", Content: "hi", ClientMsgID: "c-2"})
	rejected := patient.until(domain.EventError)
	assert.Equal(t, domain.ErrNotPermitted.Error(), rejected.Error)
	assert.Equal(t, "c-2", rejected.ClientMsgID)

	// ✅ 6️⃣ 歷史訊息為明文, 資料庫為密文
	history, err := s.uc.History(ctx, Identity{UserID: "d1", Role: domain.RoleDoctor}, "p1", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "I have a headache", history[0].Content)
	assert.True(t, history[0].IsRead)

	recent, err := s.uc.Recent(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "d1", recent[0].OtherUserID)
	assert.Equal(t, "I have a headache", recent[0].LastMessage)
	assert.True(t, recent[0].IsOnline)

	// ✅ 7️⃣ 醫師斷線, 病患收到 user_disconnected
	require.NoError(t, doctor.conn.WriteMessage(gws.CloseMessage, gws.FormatCloseMessage(gws.CloseNormalClosure, "")))
	gone := patient.until(domain.EventUserDisconnected)
	assert.Equal(t, "d1", gone.UserID)

	assert.Eventually(t, func() bool {
		u, err := s.users.FindByID(ctx, "d1")
		return err == nil && !u.IsCurrentlyOnline && u.LastSeen != nil
	}, 5*time.Second, 100*time.Millisecond)
}
