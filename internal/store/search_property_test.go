package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/SHINZO111/llm-smart-router/internal/coretypes"
	"pgregory.net/rapid"
)

// searchConversations(word) must be a superset of every conversation
// with a message containing word: for any set of conversations, each
// tagged with a unique token in at most one of its messages, searching
// for that token returns every conversation carrying it.
func TestSearchConversations_FindsEveryConversationContainingWord(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := newTestStore(t)
		ctx := context.Background()

		numConvs := rapid.IntRange(2, 4).Draw(rt, "numConvs")
		var taggedIDs []string
		token := fmt.Sprintf("needle%s", rapid.StringMatching(`[a-z]{4,8}`).Draw(rt, "token"))

		for i := 0; i < numConvs; i++ {
			conv, err := s.CreateConversation(ctx, fmt.Sprintf("chat %d", i), "")
			if err != nil {
				t.Fatalf("create conversation: %v", err)
			}
			carriesToken := rapid.Bool().Draw(rt, "carriesToken")
			content := "unrelated filler text"
			if carriesToken {
				content = fmt.Sprintf("please help me with %s today", token)
				taggedIDs = append(taggedIDs, conv.ID)
			}
			if _, err := s.AppendMessage(ctx, conv.ID, coretypes.Message{Role: coretypes.RoleUser, Content: content}); err != nil {
				t.Fatalf("append message: %v", err)
			}
		}

		results, err := s.SearchConversations(ctx, token, SearchFilter{})
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		found := map[string]bool{}
		for _, c := range results {
			found[c.ID] = true
		}
		for _, id := range taggedIDs {
			if !found[id] {
				t.Fatalf("conversation %q contains token %q but search missed it", id, token)
			}
		}
	})
}
