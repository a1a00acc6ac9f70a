package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"hospital_chat_service/internal/chat/domain"
	"hospital_chat_service/pkg/config"
	"hospital_chat_service/pkg/middlewares"
	"hospital_chat_service/pkg/token"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type handlerResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newHandlerApp(t *testing.T) (*fiber.App, *usecaseMocks, *Gateway) {
	t.Helper()
	uc, m := newTestUseCase(t)
	gateway := NewGateway(uc, NewPresenceRegistry(nil), config.GatewayConfig{})
	h := NewChatHandler(uc, gateway)

	r := fiber.New()
	r.Get("/", ConnectCheck)
	chat := r.Group("/chat", middlewares.JWTMiddleware())
	chat.Get("/unread/count", h.UnreadCount)
	chat.Get("/chat/users", h.Directory)
	chat.Get("/user/:userId", h.GetUser)
	chat.Get("/audit/:userId", h.AuditTrail)
	chat.Post("/send", h.Send)
	chat.Put("/:userId/read", h.MarkRead)
	chat.Get("/:userId", h.History)
	return r, m, gateway
}

func authorized(t *testing.T, method, target, memberID, role string, body io.Reader) *http.Request {
	t.Helper()
	tok, err := token.GenerateJWT(memberID, role, "chat-test")
	require.NoError(t, err)

	req := httptest.NewRequest(method, target, body)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+tok)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	return req
}

func doRequest(t *testing.T, r *fiber.App, req *http.Request) (int, handlerResponse) {
	t.Helper()
	resp, err := r.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out handlerResponse
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(b) > 0 && b[0] == '{' {
		require.NoError(t, json.Unmarshal(b, &out))
	}
	return resp.StatusCode, out
}

func TestHandlerRequiresToken(t *testing.T) {
	r, _, _ := newHandlerApp(t)

	status, _ := doRequest(t, r, httptest.NewRequest(http.MethodGet, "/chat/unread/count", nil))
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = doRequest(t, r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, fiber.StatusOK, status)
}

func TestHandlerSend(t *testing.T) {
	t.Run("blank content", func(t *testing.T) {
		r, _, _ := newHandlerApp(t)
		body := strings.NewReader(`{"receiverId":"d1","content":"   "}`)

		status, out := doRequest(t, r, authorized(t, http.MethodPost, "/chat/send", "p1", "patient", body))
		assert.Equal(t, fiber.StatusBadRequest, status)
		assert.False(t, out.Success)
		assert.Equal(t, domain.ErrEmptyContent.Error(), out.Message)
	})

	t.Run("invalid body", func(t *testing.T) {
		r, _, _ := newHandlerApp(t)

		status, out := doRequest(t, r, authorized(t, http.MethodPost, "/chat/send", "p1", "patient", strings.NewReader(`{`)))
		assert.Equal(t, fiber.StatusBadRequest, status)
		assert.False(t, out.Success)
	})

	t.Run("not permitted", func(t *testing.T) {
		r, m, _ := newHandlerApp(t)
		m.users.On("FindByIDs", mock.Anything, []string{"p1", "p2"}).
			Return(map[string]domain.User{"p1": patientP1, "p2": patientP2}, nil)

		body := strings.NewReader(`{"receiverId":"p2","content":"hi"}`)
		status, _ := doRequest(t, r, authorized(t, http.MethodPost, "/chat/send", "p1", "patient", body))
		assert.Equal(t, fiber.StatusForbidden, status)
	})

	t.Run("delivered to connected receiver", func(t *testing.T) {
		r, m, gateway := newHandlerApp(t)
		m.users.On("FindByIDs", mock.Anything, []string{"p1", "d1"}).
			Return(map[string]domain.User{"p1": patientP1, "d1": doctorD1}, nil)
		m.users.On("FindByIDs", mock.Anything, []string{"p1"}).
			Return(map[string]domain.User{"p1": patientP1}, nil)
		m.idem.On("Lookup", mock.Anything, "p1", "c-1").Return(nil, nil)
		m.idem.On("Remember", mock.Anything, mock.Anything).Return(nil)
		m.msgs.On("Insert", mock.Anything, mock.Anything).Return(nil)
		m.msgs.On("ListBetween", mock.Anything, "d1", "p1", 1).Return([]domain.Message{}, nil)
		m.msgs.On("UnreadBetween", mock.Anything, "d1", "p1").Return(1, nil)
		m.audit.On("Record", mock.Anything, mock.Anything).Return(nil)

		doctor := newFakeHandle("conn-d1", "d1")
		gateway.presence.Join(context.Background(), doctor)

		body := strings.NewReader(`{"receiverId":"d1","content":"hello doctor","clientMsgId":"c-1"}`)
		status, out := doRequest(t, r, authorized(t, http.MethodPost, "/chat/send", "p1", "patient", body))
		require.Equal(t, fiber.StatusOK, status)
		assert.True(t, out.Success)

		var msg domain.Message
		require.NoError(t, json.Unmarshal(out.Data, &msg))
		assert.Equal(t, "hello doctor", msg.Content)
		assert.Equal(t, "c-1", msg.ClientMsgID)

		assert.Equal(t, []domain.EventType{domain.EventNewMessage, domain.EventConversationUpdated}, doctor.types())
		m.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
	})

	t.Run("offline receiver gets a notice", func(t *testing.T) {
		r, m, _ := newHandlerApp(t)
		m.users.On("FindByIDs", mock.Anything, []string{"d1", "p1"}).
			Return(map[string]domain.User{"p1": patientP1, "d1": doctorD1}, nil)
		m.msgs.On("Insert", mock.Anything, mock.Anything).Return(nil)
		m.idem.On("Remember", mock.Anything, mock.Anything).Return(nil)
		m.audit.On("Record", mock.Anything, mock.Anything).Return(nil)
		m.notifier.On("Notify", mock.Anything, mock.MatchedBy(func(n domain.OfflineNotice) bool {
			return n.ReceiverID == "p1" && n.SenderName == "Dana Wu"
		})).Return(nil)

		body := strings.NewReader(`{"receiverId":"p1","content":"results are ready"}`)
		status, _ := doRequest(t, r, authorized(t, http.MethodPost, "/chat/send", "d1", "doctor", body))
		assert.Equal(t, fiber.StatusOK, status)
		m.notifier.AssertExpectations(t)
	})
}

func TestHandlerHistory(t *testing.T) {
	t.Run("forbidden pair", func(t *testing.T) {
		r, m, _ := newHandlerApp(t)
		p := patientP2
		m.users.On("FindByID", mock.Anything, "p2").Return(&p, nil)

		status, out := doRequest(t, r, authorized(t, http.MethodGet, "/chat/p2", "p1", "patient", nil))
		assert.Equal(t, fiber.StatusForbidden, status)
		assert.Equal(t, domain.ErrNotPermitted.Error(), out.Message)
	})

	t.Run("unknown user", func(t *testing.T) {
		r, m, _ := newHandlerApp(t)
		m.users.On("FindByID", mock.Anything, "ghost").Return(nil, domain.ErrUserNotFound)

		status, _ := doRequest(t, r, authorized(t, http.MethodGet, "/chat/ghost", "p1", "patient", nil))
		assert.Equal(t, fiber.StatusNotFound, status)
	})

	t.Run("limit from query", func(t *testing.T) {
		r, m, _ := newHandlerApp(t)
		d := doctorD1
		m.users.On("FindByID", mock.Anything, "d1").Return(&d, nil)
		m.msgs.On("ListBetween", mock.Anything, "p1", "d1", 20).Return([]domain.Message{}, nil)

		status, out := doRequest(t, r, authorized(t, http.MethodGet, "/chat/d1?limit=20", "p1", "patient", nil))
		assert.Equal(t, fiber.StatusOK, status)
		assert.JSONEq(t, `[]`, string(out.Data))
	})
}

func TestHandlerMarkRead(t *testing.T) {
	r, m, gateway := newHandlerApp(t)
	m.msgs.On("MarkRead", mock.Anything, "p1", "d1").Return(int64(2), nil)
	m.audit.On("Record", mock.Anything, mock.Anything).Return(nil)

	patient := newFakeHandle("conn-p1", "p1")
	gateway.presence.Join(context.Background(), patient)

	status, out := doRequest(t, r, authorized(t, http.MethodPut, "/chat/p1/read", "d1", "doctor", nil))
	require.Equal(t, fiber.StatusOK, status)
	assert.True(t, out.Success)
	assert.Equal(t, "Messages marked as read", out.Message)
	assert.JSONEq(t, `{"updated":2}`, string(out.Data))

	assert.Equal(t, []domain.EventType{domain.EventMessagesMarkedRead}, patient.types())
}

func TestHandlerUnreadCountInternalError(t *testing.T) {
	r, m, _ := newHandlerApp(t)
	m.msgs.On("UnreadCountFor", mock.Anything, "p1").Return(0, errors.New("pq: too many connections"))

	status, out := doRequest(t, r, authorized(t, http.MethodGet, "/chat/unread/count", "p1", "patient", nil))
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, "internal server error", out.Message)
}

func TestHandlerDirectoryAndAudit(t *testing.T) {
	r, m, _ := newHandlerApp(t)
	m.users.On("ListDirectory", mock.Anything, mock.MatchedBy(func(q domain.DirectoryQuery) bool {
		return q.Search == "dana" && q.Page == 1 && q.Limit == 10
	})).Return([]domain.User{doctorD1}, int64(1), nil)

	status, out := doRequest(t, r, authorized(t, http.MethodGet, "/chat/chat/users?search=dana&limit=10", "p1", "patient", nil))
	require.Equal(t, fiber.StatusOK, status)

	var page domain.DirectoryPage
	require.NoError(t, json.Unmarshal(out.Data, &page))
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, 1, page.Pages)
	require.Len(t, page.Users, 1)
	assert.Equal(t, "d1", page.Users[0].ID)

	status, _ = doRequest(t, r, authorized(t, http.MethodGet, "/chat/audit/p1", "d1", "doctor", nil))
	assert.Equal(t, fiber.StatusForbidden, status)
}
