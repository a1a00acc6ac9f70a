package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hospital_chat_service/internal/chatclient"
	"hospital_chat_service/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// 設定來源: flag > CHAT_CLIENT_* 環境變數
var clientConfig = viper.New()

var rootCmd = &cobra.Command{
	Use:   "chat_client",
	Short: "Hospital chat command-line client",
	Long:  "Connects to the chat gateway over websocket.\nListen for incoming messages or send one and wait for the server confirmation.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if dir := clientConfig.GetString("log_dir"); dir != "" {
			logger.Log = logger.Initialize("chat_client", dir)
			logger.Log.SetDebugMode(clientConfig.GetBool("debug"))
			return
		}
		logger.SetNewNop()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("url", "ws://localhost:8080/chat/ws", "chat gateway websocket url")
	flags.String("token", "", "JWT issued by the member service")
	flags.String("user", "", "user id inside the token")
	flags.String("log-dir", "", "write structured logs to this directory")
	flags.Bool("debug", false, "enable debug logs (requires --log-dir)")

	_ = clientConfig.BindPFlag("url", flags.Lookup("url"))
	_ = clientConfig.BindPFlag("token", flags.Lookup("token"))
	_ = clientConfig.BindPFlag("user", flags.Lookup("user"))
	_ = clientConfig.BindPFlag("log_dir", flags.Lookup("log-dir"))
	_ = clientConfig.BindPFlag("debug", flags.Lookup("debug"))
	clientConfig.SetEnvPrefix("CHAT_CLIENT")
	clientConfig.AutomaticEnv()

	rootCmd.AddCommand(listenCmd, sendCmd)
}

// session transport + engine, 由 Run 管理生命週期
type session struct {
	transport *chatclient.WSTransport
	engine    *chatclient.Engine
}

func newSession() (*session, error) {
	token := clientConfig.GetString("token")
	user := clientConfig.GetString("user")
	if token == "" || user == "" {
		return nil, fmt.Errorf("--token and --user are required")
	}

	t := chatclient.NewWSTransport(chatclient.TransportConfig{
		URL:    clientConfig.GetString("url"),
		Token:  token,
		UserID: user,
	})
	return &session{
		transport: t,
		engine:    chatclient.NewEngine(user, t),
	}, nil
}

func (s *session) start(ctx context.Context) {
	go func() { _ = s.transport.Run(ctx) }()
	go func() { _ = s.engine.Run(ctx) }()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func formatTime(t time.Time) string {
	return t.Local().Format("15:04:05")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
