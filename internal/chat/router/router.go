package router

import (
	"context"

	"hospital_chat_service/internal/chat/app"
	"hospital_chat_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes 註冊 chat 路由
// @title Hospital Chat Service API
// @version 1.0
// @description Realtime chat between patients, doctors and admins
// @host localhost:8083
// @BasePath /
func RegisterRoutes(r *fiber.App, gateway *app.Gateway, chatHandler *app.ChatHandler) {
	r.Get("/swagger/*", swagger.HandlerDefault)
	r.Get("/", app.ConnectCheck)
	r.Post("/debug", app.DebugLogFlag)
	r.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	chat := r.Group("/chat", middlewares.JWTMiddleware())

	chat.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	chat.Get("/ws", websocket.New(func(c *websocket.Conn) {
		gateway.HandleConnection(context.Background(), c)
	}))

	// 固定路徑需在 /:userId 之前
	chat.Get("/recent", chatHandler.Recent)
	chat.Get("/unread/count", chatHandler.UnreadCount)
	chat.Get("/online/users", chatHandler.OnlineUsers)
	chat.Get("/chat/users", chatHandler.Directory)
	chat.Get("/user/:userId", chatHandler.GetUser)
	chat.Get("/audit/:userId", chatHandler.AuditTrail)
	chat.Post("/send", chatHandler.Send)
	chat.Put("/:userId/read", chatHandler.MarkRead)
	chat.Get("/:userId", chatHandler.History)
}
