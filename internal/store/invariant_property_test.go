package store

import (
	"context"
	"testing"

	"github.com/SHINZO111/llm-smart-router/internal/coretypes"
	"pgregory.net/rapid"
)

// After every AppendMessage, the parent conversation's UpdatedAt is at
// least as recent as every message timestamp appended so far.
func TestAppendMessage_UpdatedAtNeverLagsMessages(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := newTestStore(t)
		ctx := context.Background()

		conv, err := s.CreateConversation(ctx, "chat", "")
		if err != nil {
			t.Fatalf("create conversation: %v", err)
		}

		n := rapid.IntRange(1, 10).Draw(rt, "numMessages")
		for i := 0; i < n; i++ {
			isAssistant := rapid.Bool().Draw(rt, "isAssistant")
			msg := coretypes.Message{Content: "hello"}
			if isAssistant {
				msg.Role = coretypes.RoleAssistant
				model := "local:qwen3-4b"
				msg.ModelRef = &model
			} else {
				msg.Role = coretypes.RoleUser
			}
			if _, err := s.AppendMessage(ctx, conv.ID, msg); err != nil {
				t.Fatalf("append message: %v", err)
			}
		}

		got, err := s.GetConversation(ctx, conv.ID)
		if err != nil {
			t.Fatalf("get conversation: %v", err)
		}
		for _, m := range got.Messages {
			if got.UpdatedAt.Before(m.Timestamp) {
				t.Fatalf("conversation UpdatedAt %v precedes message timestamp %v", got.UpdatedAt, m.Timestamp)
			}
		}
	})
}

// No assistant message ever persists without a ModelRef, for any mix
// of role/model-ref combinations AppendMessage is called with.
func TestAppendMessage_NeverPersistsAssistantWithoutModelRef(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := newTestStore(t)
		ctx := context.Background()

		conv, err := s.CreateConversation(ctx, "chat", "")
		if err != nil {
			t.Fatalf("create conversation: %v", err)
		}

		hasModel := rapid.Bool().Draw(rt, "hasModel")
		msg := coretypes.Message{Role: coretypes.RoleAssistant, Content: "reply"}
		if hasModel {
			model := "local:qwen3-4b"
			msg.ModelRef = &model
		}

		_, err = s.AppendMessage(ctx, conv.ID, msg)
		if !hasModel {
			if err != ErrMissingModelRef {
				t.Fatalf("expected ErrMissingModelRef, got %v", err)
			}
			return
		}
		if err != nil {
			t.Fatalf("unexpected error appending valid assistant message: %v", err)
		}

		got, err := s.GetConversation(ctx, conv.ID)
		if err != nil {
			t.Fatalf("get conversation: %v", err)
		}
		for _, m := range got.Messages {
			if m.Role == coretypes.RoleAssistant && m.ModelRef == nil {
				t.Fatalf("persisted assistant message with nil ModelRef")
			}
		}
	})
}
