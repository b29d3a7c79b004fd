package chatroom

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTime() time.Time {
	return time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
}

func TestWelcomeSeed(t *testing.T) {
	now := testTime()
	log := WelcomeSeed(WelcomeText)(now)

	require.Len(t, log, 1)
	assert.Equal(t, SenderAssistant, log[0].Sender)
	assert.Equal(t, WelcomeText, log[0].Text)
	assert.Equal(t, int64(1), log[0].Seq)
	assert.True(t, log[0].Timestamp.Equal(now))
	assert.NotEmpty(t, log[0].ID)
}

func TestDemoHistorySeed(t *testing.T) {
	now := testTime()
	log := DemoHistorySeed(100, WelcomeText)(now)

	require.Len(t, log, 100)
	assert.Equal(t, WelcomeText, log[0].Text)
	assert.Equal(t, SenderAssistant, log[0].Sender)
	assert.Equal(t, SenderUser, log[1].Sender)
	assert.Equal(t, "Message #2", log[1].Text)
	assert.Equal(t, "Message #100", log[99].Text)
	assert.True(t, log[99].Timestamp.Equal(now))
	assert.True(t, log[0].Timestamp.Equal(now.Add(-99*time.Minute)))
	assert.True(t, isOrdered(log))

	ids := make(map[string]struct{}, len(log))
	for _, m := range log {
		ids[m.ID] = struct{}{}
	}
	assert.Len(t, ids, 100)
}

func TestDemoHistorySeed_NonPositiveFallsBackToWelcome(t *testing.T) {
	log := DemoHistorySeed(0, "hello")(testTime())
	require.Len(t, log, 1)
	assert.Equal(t, "hello", log[0].Text)
}
