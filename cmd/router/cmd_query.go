package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/SHINZO111/llm-smart-router/internal/coretypes"
	"github.com/spf13/cobra"
)

var (
	queryForceModel string
	querySessionID  string
	queryHasImage   bool
)

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Route one input through the fallback chain and print the response",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryForceModel, "force-model", "", "bypass triage and force a specific provider:model ref")
	queryCmd.Flags().StringVar(&querySessionID, "session", "", "conversation session id to append this exchange to")
	queryCmd.Flags().BoolVar(&queryHasImage, "has-image", false, "hint that the input carries image content")
}

type queryRequestWire struct {
	Input      string         `json:"input"`
	ForceModel string         `json:"force_model,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
}

type queryResponseWire struct {
	Success  bool   `json:"success"`
	Model    string `json:"model,omitempty"`
	Response string `json:"response"`
	Metadata struct {
		Attempts    []coretypes.AttemptRecord `json:"attempts"`
		CostWarning bool                      `json:"cost_warning"`
		SavedCost   float64                   `json:"saved_cost"`
		Warning     string                    `json:"warning,omitempty"`
	} `json:"metadata"`
}

func runQuery(cmd *cobra.Command, args []string) error {
	req := queryRequestWire{Input: strings.Join(args, " "), ForceModel: queryForceModel}
	if querySessionID != "" || queryHasImage {
		req.Context = map[string]any{}
		if querySessionID != "" {
			req.Context["session_id"] = querySessionID
		}
		if queryHasImage {
			req.Context["has_image"] = true
		}
	}

	var resp queryResponseWire
	status, err := newAPIClient().do("POST", "/router/query", req, &resp)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return exitErr(exitBackendFailed)
	}

	if jsonOutput {
		enc, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(enc))
	} else if resp.Success {
		fmt.Fprintln(cmd.OutOrStdout(), resp.Response)
		fmt.Fprintln(cmd.OutOrStdout(), dim(fmt.Sprintf("model=%s saved_cost=%.5f", resp.Model, resp.Metadata.SavedCost)))
	} else {
		fmt.Fprintln(cmd.ErrOrStderr(), red(resp.Metadata.Warning))
	}

	if !resp.Success {
		return exitErr(exitBackendFailed)
	}
	if code := statusExitCode(status); code != exitSuccess {
		return exitErr(code)
	}
	return nil
}
