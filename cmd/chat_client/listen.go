package main

import (
	"fmt"

	"hospital_chat_service/internal/chatclient"

	"github.com/spf13/cobra"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Print incoming messages and connection changes until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		updates := s.engine.Subscribe()
		s.start(ctx)

		out := cmd.OutOrStdout()
		printed := map[int64]bool{}
		lastState := chatclient.ConnState("")
		for {
			select {
			case <-ctx.Done():
				return nil
			case c := <-updates:
				if st := s.engine.ConnState(); st != lastState {
					lastState = st
					fmt.Fprintf(out, "-- %s\n", st)
				}
				for _, conv := range c.Ordered() {
					for _, e := range conv.Entries {
						if e.Kind != chatclient.Confirmed || printed[e.Message.ID] {
							continue
						}
						printed[e.Message.ID] = true
						fmt.Fprintf(out, "[%s] %s -> %s: %s\n",
							formatTime(e.Message.CreatedAt), e.Message.SenderID, e.Message.ReceiverID, e.Message.Content)
					}
				}
			}
		}
	},
}
