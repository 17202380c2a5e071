package store

import (
	"context"
	"testing"

	"github.com/SHINZO111/llm-smart-router/internal/coretypes"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// import(export(C)) must equal C modulo assigned ids and export_date.
// Message order, role, content, and the model_ref carried by assistant
// turns must survive exactly.
func TestExportImportRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := newTestStore(t)
		ctx := context.Background()

		numConvs := rapid.IntRange(1, 3).Draw(rt, "numConvs")
		type wantConv struct {
			title    string
			messages []coretypes.Message
		}
		var want []wantConv

		for i := 0; i < numConvs; i++ {
			title := rapid.StringMatching(`[a-zA-Z0-9 ]{1,20}`).Draw(rt, "title")
			conv, err := s.CreateConversation(ctx, title, "dev")
			require.NoError(t, err)

			numMsgs := rapid.IntRange(1, 4).Draw(rt, "numMsgs")
			var msgs []coretypes.Message
			for j := 0; j < numMsgs; j++ {
				content := rapid.StringMatching(`[a-zA-Z0-9 ]{1,40}`).Draw(rt, "content")
				isAssistant := rapid.Bool().Draw(rt, "isAssistant")
				msg := coretypes.Message{Content: content, Role: coretypes.RoleUser}
				if isAssistant {
					msg.Role = coretypes.RoleAssistant
					msg.ModelRef = ref("local:qwen3-4b")
				}
				saved, err := s.AppendMessage(ctx, conv.ID, msg)
				require.NoError(t, err)
				msgs = append(msgs, saved)
			}
			want = append(want, wantConv{title: title, messages: msgs})
		}

		doc, err := s.Export(ctx, ExportFilter{TopicName: "dev"}, "2026-07-31T00:00:00Z")
		require.NoError(t, err)
		require.Len(t, doc.Conversations, numConvs)

		for _, ec := range doc.Conversations {
			require.NoError(t, s.DeleteConversation(ctx, ec.ID))
		}

		result, err := s.Import(ctx, doc)
		require.NoError(t, err)
		require.Len(t, result.ConversationIDs, numConvs)

		got, err := s.ListConversations(ctx, "dev")
		require.NoError(t, err)
		require.Len(t, got, numConvs)

		for _, w := range want {
			summary := findByTitle(got, w.title)
			require.NotNil(t, summary, "conversation %q missing after round trip", w.title)

			reimported, err := s.GetConversation(ctx, summary.ID)
			require.NoError(t, err)
			require.Len(t, reimported.Messages, len(w.messages))
			for j, m := range w.messages {
				got := reimported.Messages[j]
				require.Equal(t, m.Role, got.Role)
				require.Equal(t, m.Content, got.Content)
				if m.Role == coretypes.RoleAssistant {
					require.NotNil(t, got.ModelRef)
					require.Equal(t, *m.ModelRef, *got.ModelRef)
				}
			}
		}
	})
}

func findByTitle(convs []coretypes.Conversation, title string) *coretypes.Conversation {
	for i := range convs {
		if convs[i].Title == title {
			return &convs[i]
		}
	}
	return nil
}
