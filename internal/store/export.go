package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/SHINZO111/llm-smart-router/internal/coretypes"
)

// ExportVersion is the major.minor tag stamped onto exported documents.
// Importers accept any minor version sharing ExportMajorVersion.
const ExportVersion = "1.0"

// ExportMajorVersion is the major component of ExportVersion.
const ExportMajorVersion = "1"

// ExportedConversation is one conversation entry in an export document.
type ExportedConversation struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Topic     string            `json:"topic,omitempty"`
	CreatedAt string            `json:"created_at"`
	UpdatedAt string            `json:"updated_at"`
	Messages  []ExportedMessage `json:"messages"`
}

// ExportedMessage is one message entry in an export document.
type ExportedMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Model     string `json:"model,omitempty"`
	Timestamp string `json:"timestamp"`
}

// ExportMetadata summarizes an export document's contents.
type ExportMetadata struct {
	MessageCount      int      `json:"message_count"`
	UserMessages      int      `json:"user_messages"`
	AssistantMessages int      `json:"assistant_messages"`
	ModelsUsed        []string `json:"models_used"`
}

// ExportDocument is the top-level JSON shape of a conversation export.
type ExportDocument struct {
	Version       string                 `json:"version"`
	ExportDate    string                 `json:"export_date"`
	Conversations []ExportedConversation `json:"conversations"`
	Metadata      ExportMetadata         `json:"metadata"`
}

// ExportFilter narrows which conversations Export includes.
type ExportFilter struct {
	ConversationIDs []string
	TopicName       string
}

// Export builds a document for the conversations matching filter.
// exportDate is supplied by the caller (router/cmd layer) rather than
// computed here, since this package must not call time.Now for values
// that end up in test-asserted output — callers stamp it.
func (s *Store) Export(ctx context.Context, filter ExportFilter, exportDate string) (ExportDocument, error) {
	var convs []coretypes.Conversation
	var err error

	switch {
	case len(filter.ConversationIDs) > 0:
		for _, id := range filter.ConversationIDs {
			c, getErr := s.GetConversation(ctx, id)
			if getErr != nil {
				return ExportDocument{}, getErr
			}
			convs = append(convs, c)
		}
	default:
		convs, err = s.ListConversations(ctx, filter.TopicName)
		if err != nil {
			return ExportDocument{}, err
		}
		for i := range convs {
			full, getErr := s.GetConversation(ctx, convs[i].ID)
			if getErr != nil {
				return ExportDocument{}, getErr
			}
			convs[i] = full
		}
	}

	doc := ExportDocument{Version: ExportVersion, ExportDate: exportDate}
	modelsSeen := map[string]bool{}

	for _, c := range convs {
		topicName, err := s.topicNameFor(ctx, c.TopicID)
		if err != nil {
			return ExportDocument{}, err
		}
		ec := ExportedConversation{
			ID:        c.ID,
			Title:     c.Title,
			Topic:     topicName,
			CreatedAt: c.CreatedAt.Format(timeLayout),
			UpdatedAt: c.UpdatedAt.Format(timeLayout),
		}
		for _, m := range c.Messages {
			em := ExportedMessage{
				Role:      string(m.Role),
				Content:   m.Content,
				Timestamp: m.Timestamp.Format(timeLayout),
			}
			if m.ModelRef != nil {
				em.Model = *m.ModelRef
				modelsSeen[*m.ModelRef] = true
			}
			ec.Messages = append(ec.Messages, em)
			doc.Metadata.MessageCount++
			switch m.Role {
			case coretypes.RoleUser:
				doc.Metadata.UserMessages++
			case coretypes.RoleAssistant:
				doc.Metadata.AssistantMessages++
			}
		}
		doc.Conversations = append(doc.Conversations, ec)
	}
	for model := range modelsSeen {
		doc.Metadata.ModelsUsed = append(doc.Metadata.ModelsUsed, model)
	}
	return doc, nil
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

func (s *Store) topicNameFor(ctx context.Context, topicID *string) (string, error) {
	if topicID == nil {
		return "", nil
	}
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM topics WHERE id = ?`, *topicID).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: lookup topic name: %w", err)
	}
	return name, nil
}

// ImportResult reports the ids newly created by Import.
type ImportResult struct {
	ConversationIDs []string
}

// Import materializes doc's conversations, reusing an existing topic
// whose name matches rather than erroring, and assigning fresh ids —
// round-tripped conversations are equivalent, not identical, to the
// originals.
func (s *Store) Import(ctx context.Context, doc ExportDocument) (ImportResult, error) {
	var result ImportResult
	for _, ec := range doc.Conversations {
		conv, err := s.CreateConversation(ctx, ec.Title, ec.Topic)
		if err != nil {
			return ImportResult{}, fmt.Errorf("store: import conversation %q: %w", ec.Title, err)
		}
		for _, em := range ec.Messages {
			msg := coretypes.Message{
				Role:    coretypes.Role(em.Role),
				Content: em.Content,
			}
			if em.Model != "" {
				model := em.Model
				msg.ModelRef = &model
			}
			if ts, err := parseExportTime(em.Timestamp); err == nil {
				msg.Timestamp = ts
			}
			if _, err := s.AppendMessage(ctx, conv.ID, msg); err != nil {
				return ImportResult{}, fmt.Errorf("store: import message into %q: %w", ec.Title, err)
			}
		}
		result.ConversationIDs = append(result.ConversationIDs, conv.ID)
	}
	return result, nil
}

func parseExportTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
