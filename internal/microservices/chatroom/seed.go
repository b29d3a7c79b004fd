package chatroom

import (
	"fmt"
	"time"
)

const WelcomeText = "Welcome to Gemini chat!"

// SeedFunc builds the initial log of a room that has nothing stored
type SeedFunc func(now time.Time) []Message

// WelcomeSeed seeds a single assistant greeting
func WelcomeSeed(text string) SeedFunc {
	return func(now time.Time) []Message {
		return []Message{{
			ID:        newMessageID(),
			Seq:       1,
			Sender:    SenderAssistant,
			Text:      text,
			Timestamp: now,
		}}
	}
}

// DemoHistorySeed reproduces the demo pool used to exercise infinite scroll:
// n messages one minute apart ending at now, alternating assistant/user,
// the first one being the greeting.
func DemoHistorySeed(n int, welcome string) SeedFunc {
	if n <= 0 {
		return WelcomeSeed(welcome)
	}
	return func(now time.Time) []Message {
		out := make([]Message, 0, n)
		for i := 0; i < n; i++ {
			sender := SenderUser
			if i%2 == 0 {
				sender = SenderAssistant
			}
			text := fmt.Sprintf("Message #%d", i+1)
			if i == 0 {
				text = welcome
			}
			out = append(out, Message{
				ID:        newMessageID(),
				Seq:       int64(i + 1),
				Sender:    sender,
				Text:      text,
				Timestamp: now.Add(-time.Duration(n-1-i) * time.Minute),
			})
		}
		return out
	}
}
