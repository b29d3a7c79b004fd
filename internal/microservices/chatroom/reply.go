package chatroom

import (
	"context"
)

const DefaultReplyPrefix = "Gemini: "

// ReplyGenerator produces the assistant answer for a user message.
// It stands in for a real model backend.
type ReplyGenerator interface {
	Generate(ctx context.Context, userText string) (string, error)
}

// ReplyFunc adapts a plain function to ReplyGenerator
type ReplyFunc func(ctx context.Context, userText string) (string, error)

func (f ReplyFunc) Generate(ctx context.Context, userText string) (string, error) {
	return f(ctx, userText)
}

// ReverseGenerator echoes the user text reversed rune by rune behind a prefix
type ReverseGenerator struct {
	Prefix string
}

func NewReverseGenerator(prefix string) *ReverseGenerator {
	return &ReverseGenerator{Prefix: prefix}
}

func (g *ReverseGenerator) Generate(ctx context.Context, userText string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	runes := []rune(userText)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return g.Prefix + string(runes), nil
}
