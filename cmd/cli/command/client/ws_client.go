package client

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"geminichat/internal/microservices/http-api/dto"
	"geminichat/internal/microservices/websocket"

	"github.com/fatih/color"
	gorillaws "github.com/gorilla/websocket"
)

// ws_client.go = handles WebSocket client functionality for the geminichat CLI.

// wsURL turns the API base URL into the room stream URL
func wsURL(apiURL, roomID string) (string, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return "", fmt.Errorf("invalid api url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/chatrooms/" + url.PathEscape(roomID)
	return u.String(), nil
}

// JoinChatRoom streams a room to stdout and sends stdin lines as messages.
// "/older" loads an older page, "/image PATH" attaches an image, "/quit" leaves.
func JoinChatRoom(apiURL, roomID string) error {
	target, err := wsURL(apiURL, roomID)
	if err != nil {
		return err
	}

	fmt.Printf("\n🔌 Connecting to chat room %s...\n", roomID)
	conn, _, err := gorillaws.DefaultDialer.Dial(target, nil)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer conn.Close()

	fmt.Printf("✅ Connected! Type your messages (/older, /image PATH, /quit)\n\n")

	// Channel for interrupt signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	// Goroutine to receive messages
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if !gorillaws.IsCloseError(err, gorillaws.CloseNormalClosure) {
					log.Println("Read error:", err)
				}
				return
			}
			msg, err := websocket.MessageFromJSON(data)
			if err != nil {
				continue
			}
			PrintMessage(os.Stdout, msg)
		}
	}()

	// Goroutine to send messages
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			frame, quit, err := ParseInput(scanner.Text())
			if quit {
				interrupt <- os.Interrupt
				return
			}
			if err != nil {
				color.Red("❌ %v", err)
				continue
			}
			if frame == nil {
				continue
			}
			if err := conn.WriteJSON(frame); err != nil {
				log.Println("Write error:", err)
				return
			}
		}
	}()

	select {
	case <-interrupt:
		log.Println("Closing connection...")
		_ = conn.WriteControl(gorillaws.CloseMessage,
			gorillaws.FormatCloseMessage(gorillaws.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	case <-done:
	}
	return nil
}

// ParseInput maps one line typed by the user onto an outbound frame
func ParseInput(line string) (frame *websocket.Message, quit bool, err error) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return nil, false, nil
	case line == "/quit":
		return nil, true, nil
	case line == "/older":
		return &websocket.Message{Type: websocket.TypeOlder}, false, nil
	case strings.HasPrefix(line, "/image "):
		path, caption, _ := strings.Cut(strings.TrimSpace(strings.TrimPrefix(line, "/image ")), " ")
		image, err := ImageDataURL(path)
		if err != nil {
			return nil, false, err
		}
		return &websocket.Message{Type: websocket.TypeChat, Content: caption, Image: image}, false, nil
	default:
		return &websocket.Message{Type: websocket.TypeChat, Content: line}, false, nil
	}
}

func PrintMessage(w io.Writer, msg *websocket.Message) {
	switch msg.Type {
	case websocket.TypeSystem:
		color.New(color.FgYellow).Fprintf(w, "🔔 %s\n", msg.Content)

	case websocket.TypeChat:
		if msg.Message != nil {
			PrintChatMessage(w, *msg.Message)
		}

	case websocket.TypeTyping:
		if msg.State != nil && msg.State.IsAwaitingReply {
			color.New(color.FgHiBlack).Fprintln(w, "Gemini is typing...")
		}

	case websocket.TypeLoading:
		color.New(color.FgHiBlack).Fprintln(w, "Loading older messages...")

	case websocket.TypeHistory:
		if msg.State != nil && msg.State.HasMoreOlder {
			color.New(color.FgHiBlack).Fprintf(w, "── %d older messages, type /older ──\n",
				msg.State.Total-msg.State.VisibleWindowSize)
		}
		for _, m := range msg.Messages {
			PrintChatMessage(w, m)
		}
	}
}

func PrintChatMessage(w io.Writer, m dto.MessageResponse) {
	stamp := m.Timestamp.Local().Format("15:04")
	text := m.Text
	if m.Image != "" {
		text = strings.TrimSpace(text + " [image]")
	}
	if m.Sender == "user" {
		color.New(color.FgGreen).Fprintf(w, "[%s] you: %s\n", stamp, text)
		return
	}
	color.New(color.FgCyan).Fprintf(w, "[%s] %s\n", stamp, text)
}
