package main

import (
	"context"
	"fmt"
	"time"

	"hospital_chat_service/internal/chatclient"

	"github.com/spf13/cobra"
)

var (
	sendTo      string
	sendTimeout time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send [message]",
	Short: "Send one message and wait until the server confirms it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}

		sigCtx, cancel := signalContext()
		defer cancel()
		ctx, cancelTimeout := context.WithTimeout(sigCtx, sendTimeout)
		defer cancelTimeout()

		updates := s.engine.Subscribe()
		s.start(ctx)

		// 連線前送出會先排隊, 連上後自動送出
		localID, err := s.engine.Send(sendTo, args[0])
		if err != nil {
			return err
		}

		for {
			select {
			case <-ctx.Done():
				return fmt.Errorf("message not confirmed (state %s): %w", s.engine.ConnState(), ctx.Err())
			case c := <-updates:
				e, ok := c.FindLocal(localID)
				if !ok {
					continue
				}
				switch {
				case e.Kind == chatclient.Confirmed:
					fmt.Fprintf(cmd.OutOrStdout(), "sent #%d at %s\n", e.Message.ID, formatTime(e.Message.CreatedAt))
					return nil
				case e.Failed():
					return fmt.Errorf("send failed: %s", e.Error)
				}
			}
		}
	},
}

func init() {
	sendCmd.Flags().StringVar(&sendTo, "to", "", "receiver user id")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 15*time.Second, "how long to wait for the confirmation")
	_ = sendCmd.MarkFlagRequired("to")
}
