package main

import (
	"fmt"

	"github.com/SHINZO111/llm-smart-router/internal/coretypes"
	"github.com/spf13/cobra"
)

var fallbackCmd = &cobra.Command{
	Use:   "fallback",
	Short: "Inspect or override the router's fallback priority chain",
}

var fallbackSetCmd = &cobra.Command{
	Use:   "set <provider:model> [provider:model...]",
	Short: "Persist an operator override of the fallback chain, in priority order",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFallbackSet,
}

func init() {
	fallbackCmd.AddCommand(fallbackSetCmd)
	rootCmd.AddCommand(fallbackCmd)
}

func runFallbackSet(cmd *cobra.Command, args []string) error {
	body := struct {
		Chain coretypes.FallbackChain `json:"chain"`
	}{Chain: coretypes.FallbackChain(args)}

	var resp struct {
		Saved bool                    `json:"saved"`
		Chain coretypes.FallbackChain `json:"chain"`
	}
	status, err := newAPIClient().do("POST", "/router/fallback-priority", body, &resp)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return exitErr(exitBackendFailed)
	}
	if status != 200 {
		fmt.Fprintln(cmd.ErrOrStderr(), red("fallback priority rejected"))
		return exitErr(exitConfigError)
	}
	fmt.Fprintln(cmd.OutOrStdout(), green(fmt.Sprintf("fallback priority set: %v", resp.Chain)))
	return nil
}
