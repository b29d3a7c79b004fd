package command

import (
	"errors"
	"fmt"
	"os"

	c "geminichat/cmd/cli/command/client"
	"geminichat/internal/microservices/http-api/dto"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat room related commands",
	Long:  `Commands to read chat rooms, send messages and follow a room in real-time.`,
}

var chatHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the visible messages of a chat room",
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, _ := cmd.Flags().GetString("room")
		older, _ := cmd.Flags().GetInt("older")

		httpClient := c.NewHTTPClient(apiURL)
		window, err := httpClient.GetHistory(roomID)
		if err != nil {
			return fmt.Errorf("failed to get history: %w", err)
		}
		for i := 0; i < older && window.State.HasMoreOlder; i++ {
			if window, err = httpClient.LoadOlder(roomID); err != nil {
				return fmt.Errorf("failed to load older messages: %w", err)
			}
		}

		printWindow(window)
		return nil
	},
}

var chatSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a message to a chat room",
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, _ := cmd.Flags().GetString("room")
		text, _ := cmd.Flags().GetString("text")
		imagePath, _ := cmd.Flags().GetString("image")

		req := &dto.SendMessageRequest{Text: text}
		if imagePath != "" {
			image, err := c.ImageDataURL(imagePath)
			if err != nil {
				return fmt.Errorf("failed to read image: %w", err)
			}
			req.Image = image
		}

		resp, err := c.NewHTTPClient(apiURL).SendMessage(roomID, req)
		if err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
		if resp == nil {
			color.Yellow("Nothing to send.")
			return nil
		}

		c.PrintChatMessage(os.Stdout, resp.Message)
		if !resp.Persisted {
			color.Yellow("⚠️  The server could not save the message; it may be lost on restart.")
		}
		color.HiBlack("Gemini is typing... use 'chat join' to see the reply live.")
		return nil
	},
}

var chatJoinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join a chat room and follow it live",
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, _ := cmd.Flags().GetString("room")
		return c.JoinChatRoom(apiURL, roomID)
	},
}

var chatClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the stored messages of a chat room",
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, _ := cmd.Flags().GetString("room")
		window, err := c.NewHTTPClient(apiURL).ClearHistory(roomID)
		if err != nil {
			return fmt.Errorf("failed to clear chat room: %w", err)
		}
		color.Green("✅ Chat room %s cleared.", roomID)
		printWindow(window)
		return nil
	},
}

var chatCloseCmd = &cobra.Command{
	Use:   "close",
	Short: "Close the server side view of a chat room",
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, _ := cmd.Flags().GetString("room")
		err := c.NewHTTPClient(apiURL).CloseSession(roomID)

		var apiErr *c.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == 404 {
			color.Yellow("Chat room %s has no open view.", roomID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to close chat room: %w", err)
		}
		color.Green("✅ Chat room %s closed, pending replies dropped.", roomID)
		return nil
	},
}

func printWindow(window *dto.WindowResponse) {
	if window.State.HasMoreOlder {
		color.HiBlack("── %d older messages, use --older N ──",
			window.State.Total-window.State.VisibleWindowSize)
	}
	for _, m := range window.Messages {
		c.PrintChatMessage(os.Stdout, m)
	}
	if window.State.IsAwaitingReply {
		color.HiBlack("Gemini is typing...")
	}
}

func init() {
	chatCmd.AddCommand(chatHistoryCmd, chatSendCmd, chatJoinCmd, chatClearCmd, chatCloseCmd)
	rootCmd.AddCommand(chatCmd)

	for _, cmd := range []*cobra.Command{chatHistoryCmd, chatSendCmd, chatJoinCmd, chatClearCmd, chatCloseCmd} {
		cmd.Flags().StringP("room", "r", "", "Chat room ID (required)")
		cmd.MarkFlagRequired("room")
	}

	chatHistoryCmd.Flags().Int("older", 0, "Number of older pages to load")
	chatSendCmd.Flags().StringP("text", "t", "", "Message text")
	chatSendCmd.Flags().StringP("image", "i", "", "Path of an image to attach")
}
