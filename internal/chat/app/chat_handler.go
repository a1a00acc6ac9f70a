package app

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"hospital_chat_service/internal/chat/domain"
	"hospital_chat_service/pkg/logger"
	"hospital_chat_service/pkg/middlewares"
	testtool "hospital_chat_service/pkg/test_tool"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ChatHandler REST fallback, 與 realtime 共用用例與推送
type ChatHandler struct {
	uc      *ChatUseCase
	gateway *Gateway
}

// NewChatHandler create ChatHandler
func NewChatHandler(uc *ChatUseCase, gateway *Gateway) *ChatHandler {
	return &ChatHandler{uc: uc, gateway: gateway}
}

// Response 統一回應格式
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

func success(c *fiber.Ctx, data interface{}) error {
	return c.JSON(Response{Success: true, Data: data})
}

func failure(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(Response{Success: false, Message: msg})
}

// writeError 錯誤分類對應 http status, 非預期錯誤不回傳細節
func writeError(c *fiber.Ctx, err error) error {
	switch {
	case domain.IsValidation(err):
		return failure(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUserNotFound):
		return failure(c, fiber.StatusNotFound, err.Error())
	case domain.IsAuthorization(err):
		return failure(c, fiber.StatusForbidden, err.Error())
	default:
		return failure(c, fiber.StatusInternalServerError, "internal server error")
	}
}

func identityOf(c *fiber.Ctx) Identity {
	memberID, role := middlewares.MemberFromCtx(c)
	return Identity{UserID: memberID, Role: domain.ParseRole(role)}
}

// Recent 對話列表
// @Summary Recent conversations
// @Description One row per counterpart with the latest message and unread count
// @Tags Chat
// @Produce json
// @Param auth query string false "JWT"
// @Success 200 {object} Response{data=[]domain.ConversationSummary}
// @Failure 401 {object} Response
// @Router /chat/recent [get]
func (h *ChatHandler) Recent(c *fiber.Ctx) error {
	summaries, err := h.uc.Recent(c.UserContext(), identityOf(c).UserID)
	if err != nil {
		return writeError(c, err)
	}
	if summaries == nil {
		summaries = []domain.ConversationSummary{}
	}
	return success(c, summaries)
}

// UnreadCount 未讀總數
// @Summary Unread message count
// @Tags Chat
// @Produce json
// @Success 200 {object} Response
// @Router /chat/unread/count [get]
func (h *ChatHandler) UnreadCount(c *fiber.Ctx) error {
	n, err := h.uc.UnreadCount(c.UserContext(), identityOf(c).UserID)
	if err != nil {
		return writeError(c, err)
	}
	return success(c, fiber.Map{"unreadCount": n})
}

// OnlineUsers 可對話的使用者與即時在線狀態
// @Summary Users visible to the caller with live online flag
// @Tags Chat
// @Produce json
// @Success 200 {object} Response{data=[]domain.User}
// @Router /chat/online/users [get]
func (h *ChatHandler) OnlineUsers(c *fiber.Ctx) error {
	users, err := h.uc.OnlineUsers(c.UserContext(), identityOf(c))
	if err != nil {
		return writeError(c, err)
	}
	return success(c, users)
}

// Directory 使用者目錄
// @Summary Chat user directory
// @Description Patients only see doctors. Search matches first name, last name and email.
// @Tags Chat
// @Produce json
// @Param page query int false "page" default(1)
// @Param limit query int false "page size" default(50)
// @Param search query string false "search text"
// @Success 200 {object} Response{data=domain.DirectoryPage}
// @Router /chat/chat/users [get]
func (h *ChatHandler) Directory(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", defaultDirectoryLimit)

	result, err := h.uc.Directory(c.UserContext(), identityOf(c), c.Query("search"), page, limit)
	if err != nil {
		return writeError(c, err)
	}
	return success(c, result)
}

// GetUser 單一使用者
// @Summary Get a user to chat with
// @Tags Chat
// @Produce json
// @Param userId path string true "user id"
// @Success 200 {object} Response{data=domain.User}
// @Failure 400 {object} Response
// @Failure 403 {object} Response
// @Failure 404 {object} Response
// @Router /chat/user/{userId} [get]
func (h *ChatHandler) GetUser(c *fiber.Ctx) error {
	user, err := h.uc.GetUser(c.UserContext(), identityOf(c), c.Params("userId"))
	if err != nil {
		return writeError(c, err)
	}
	return success(c, user)
}

// History 與對方的訊息
// @Summary Conversation history
// @Description Most recent messages, oldest first
// @Tags Chat
// @Produce json
// @Param userId path string true "counterpart id"
// @Param limit query int false "max messages" default(100)
// @Success 200 {object} Response{data=[]domain.Message}
// @Failure 403 {object} Response
// @Failure 404 {object} Response
// @Router /chat/{userId} [get]
func (h *ChatHandler) History(c *fiber.Ctx) error {
	messages, err := h.uc.History(c.UserContext(), identityOf(c), c.Params("userId"), c.QueryInt("limit", 0))
	if err != nil {
		return writeError(c, err)
	}
	return success(c, messages)
}

// MarkRead 對方傳來的訊息設為已讀
// @Summary Mark messages from a user as read
// @Tags Chat
// @Produce json
// @Param userId path string true "sender id"
// @Success 200 {object} Response
// @Router /chat/{userId}/read [put]
func (h *ChatHandler) MarkRead(c *fiber.Ctx) error {
	me := identityOf(c)
	senderID := c.Params("userId")

	n, err := h.uc.MarkRead(c.UserContext(), me.UserID, senderID)
	if err != nil {
		return writeError(c, err)
	}
	h.gateway.DeliverRead(c.UserContext(), me.UserID, senderID, nil)

	return c.JSON(fiber.Map{"success": true, "message": "Messages marked as read", "data": fiber.Map{"updated": n}})
}

// Send REST 送出訊息, 推送行為與 realtime 相同
// @Summary Send a message
// @Tags Chat
// @Accept json
// @Produce json
// @Param request body SendRequest true "message"
// @Success 200 {object} Response{data=domain.Message}
// @Failure 400 {object} Response
// @Failure 403 {object} Response
// @Router /chat/send [post]
func (h *ChatHandler) Send(c *fiber.Ctx) error {
	var req SendRequest
	if err := c.BodyParser(&req); err != nil {
		return failure(c, fiber.StatusBadRequest, "invalid request")
	}

	res, err := h.uc.Send(c.UserContext(), identityOf(c), req)
	if err != nil {
		return writeError(c, err)
	}
	h.gateway.DeliverSent(c.UserContext(), res, nil)

	return success(c, res.Message)
}

// AuditTrail 稽核紀錄 (admin)
// @Summary Chat audit trail of a user
// @Tags Chat
// @Produce json
// @Param userId path string true "actor id"
// @Param limit query int false "max entries" default(50)
// @Success 200 {object} Response{data=[]domain.AuditEntry}
// @Failure 403 {object} Response
// @Router /chat/audit/{userId} [get]
func (h *ChatHandler) AuditTrail(c *fiber.Ctx) error {
	entries, err := h.uc.AuditTrail(c.UserContext(), identityOf(c), c.Params("userId"), int64(c.QueryInt("limit", defaultAuditLimit)))
	if err != nil {
		return writeError(c, err)
	}
	return success(c, entries)
}

// ConnectCheck check service start
// @Summary Check chat service status
// @Tags Shared
// @Success 200 {string} string "chat service start!"
// @Router / [get]
func ConnectCheck(c *fiber.Ctx) error {
	return c.SendString("chat service start!")
}

var pprofOnce sync.Once

// DebugLogFlag toggle debug log flag, 開啟時一併啟動 pprof
// @Summary Toggle Debug Log Flag
// @Tags Shared
// @Param status query bool true "Debug status"
// @Success 200 {string} string "Service debug mode updated"
// @Failure 400 {string} string "Invalid status value"
// @Router /debug [post]
func DebugLogFlag(c *fiber.Ctx) error {
	query, err := url.ParseQuery(string(c.Context().QueryArgs().QueryString()))
	if err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	statusStr := query.Get("status")
	logger.Log.Info("debug", zap.String("status", statusStr))

	status, err := strconv.ParseBool(statusStr)
	if err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}

	logger.Log.SetDebugMode(status)
	if status {
		pprofOnce.Do(testtool.StartPprof)
	}
	return c.SendString(fmt.Sprintf("chat service debug mode is : %t", status))
}
