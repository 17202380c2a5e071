package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/SHINZO111/llm-smart-router/internal/coretypes"
	"github.com/SHINZO111/llm-smart-router/internal/store"
	"github.com/spf13/cobra"
)

var conversationCmd = &cobra.Command{
	Use:   "conversation",
	Short: "Manage persisted conversations: list, show, search, export, import, stats",
}

var convTopic string

func init() {
	conversationCmd.AddCommand(conversationListCmd, conversationShowCmd, conversationSearchCmd,
		conversationExportCmd, conversationImportCmd, conversationStatsCmd)
	conversationListCmd.Flags().StringVar(&convTopic, "topic", "", "filter by topic name")
}

var conversationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations, most recently updated first",
	RunE:  runConversationList,
}

func runConversationList(cmd *cobra.Command, args []string) error {
	var resp struct {
		Conversations []coretypes.Conversation `json:"conversations"`
	}
	path := "/api/v1/conversations"
	if convTopic != "" {
		path += "?topic=" + convTopic
	}
	status, err := newAPIClient().do("GET", path, nil, &resp)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return exitErr(exitStoreError)
	}
	if jsonOutput {
		enc, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(enc))
	} else {
		for _, c := range resp.Conversations {
			fmt.Fprintf(cmd.OutOrStdout(), "%-36s %-10s %s\n", c.ID, c.Status, c.Title)
		}
	}
	return exitErrIfNotOK(status)
}

var conversationShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one conversation and its messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runConversationShow,
}

func runConversationShow(cmd *cobra.Command, args []string) error {
	var conv coretypes.Conversation
	status, err := newAPIClient().do("GET", "/api/v1/conversations/"+args[0], nil, &conv)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return exitErr(exitStoreError)
	}
	if jsonOutput {
		enc, _ := json.MarshalIndent(conv, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(enc))
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", conv.Title, conv.Status)
		for _, m := range conv.Messages {
			fmt.Fprintf(cmd.OutOrStdout(), "  [%s] %s\n", m.Role, m.Content)
		}
	}
	return exitErrIfNotOK(status)
}

var conversationSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search across conversation content",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runConversationSearch,
}

func runConversationSearch(cmd *cobra.Command, args []string) error {
	var resp struct {
		Results []coretypes.Conversation `json:"results"`
	}
	q := strings.Join(args, " ")
	status, err := newAPIClient().do("GET", "/api/v1/search?q="+q, nil, &resp)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return exitErr(exitStoreError)
	}
	if jsonOutput {
		enc, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(enc))
	} else {
		for _, c := range resp.Results {
			fmt.Fprintf(cmd.OutOrStdout(), "%-36s %s\n", c.ID, c.Title)
		}
	}
	return exitErrIfNotOK(status)
}

var exportOutPath string

var conversationExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all conversations as a portable JSON document",
	RunE:  runConversationExport,
}

func init() {
	conversationExportCmd.Flags().StringVar(&exportOutPath, "out", "", "write the export document to this path instead of stdout")
}

func runConversationExport(cmd *cobra.Command, args []string) error {
	var doc store.ExportDocument
	status, err := newAPIClient().do("POST", "/api/v1/export", nil, &doc)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return exitErr(exitStoreError)
	}

	enc, _ := json.MarshalIndent(doc, "", "  ")
	if exportOutPath != "" {
		if err := os.WriteFile(exportOutPath, enc, 0o644); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), err)
			return exitErr(exitStoreError)
		}
		fmt.Fprintln(cmd.OutOrStdout(), green("wrote "+exportOutPath))
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), string(enc))
	}
	return exitErrIfNotOK(status)
}

var conversationImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a previously exported JSON document",
	Args:  cobra.ExactArgs(1),
	RunE:  runConversationImport,
}

func runConversationImport(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return exitErr(exitUsageError)
	}
	var doc store.ExportDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return exitErr(exitUsageError)
	}

	var result struct {
		ConversationIDs []string `json:"conversation_ids"`
	}
	status, err := newAPIClient().do("POST", "/api/v1/import", doc, &result)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return exitErr(exitStoreError)
	}
	fmt.Fprintln(cmd.OutOrStdout(), green(fmt.Sprintf("imported %d conversations", len(result.ConversationIDs))))
	return exitErrIfNotOK(status)
}

var conversationStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the store's conversation and message counts",
	RunE:  runConversationStats,
}

func runConversationStats(cmd *cobra.Command, args []string) error {
	var doc store.ExportDocument
	status, err := newAPIClient().do("POST", "/api/v1/export", nil, &doc)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return exitErr(exitStoreError)
	}

	if jsonOutput {
		enc, _ := json.MarshalIndent(doc.Metadata, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(enc))
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "conversations: %d\n", len(doc.Conversations))
		fmt.Fprintf(cmd.OutOrStdout(), "messages: %d (user=%d assistant=%d)\n",
			doc.Metadata.MessageCount, doc.Metadata.UserMessages, doc.Metadata.AssistantMessages)
		fmt.Fprintf(cmd.OutOrStdout(), "models used: %s\n", strings.Join(doc.Metadata.ModelsUsed, ", "))
	}
	return exitErrIfNotOK(status)
}
