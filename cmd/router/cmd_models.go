package main

import (
	"encoding/json"
	"fmt"

	"github.com/SHINZO111/llm-smart-router/internal/coretypes"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Trigger a background registry refresh against the configured local endpoint",
	RunE:  runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	status, err := newAPIClient().do("POST", "/models/scan", nil, nil)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return exitErr(exitBackendFailed)
	}
	fmt.Fprintln(cmd.OutOrStdout(), green("scan started"))
	if code := statusExitCode(status); code != exitSuccess {
		return exitErr(code)
	}
	return nil
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the router's request/cost counters",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	var snap struct {
		TotalRequests  int64   `json:"total_requests"`
		LocalUsed      int64   `json:"local_used"`
		CloudUsed      int64   `json:"cloud_used"`
		FallbackCount  int64   `json:"fallback_count"`
		VisionRequests int64   `json:"vision_requests"`
		TotalCost      float64 `json:"total_cost"`
		TotalSaved     float64 `json:"total_saved"`
	}
	status, err := newAPIClient().do("GET", "/router/stats", nil, &snap)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return exitErr(exitBackendFailed)
	}

	if jsonOutput {
		enc, _ := json.MarshalIndent(snap, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(enc))
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "requests: %d (local=%d cloud=%d fallback=%d vision=%d)\n",
			snap.TotalRequests, snap.LocalUsed, snap.CloudUsed, snap.FallbackCount, snap.VisionRequests)
		fmt.Fprintf(cmd.OutOrStdout(), "cost: $%.4f spent, $%.4f saved\n", snap.TotalCost, snap.TotalSaved)
	}
	return exitErrIfNotOK(status)
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the registry's currently detected models",
	RunE:  runModels,
}

func runModels(cmd *cobra.Command, args []string) error {
	var resp struct {
		Models     []coretypes.ModelEntry `json:"models"`
		LastScan   string                 `json:"last_scan"`
		CacheValid bool                   `json:"cache_valid"`
	}
	status, err := newAPIClient().do("GET", "/models/detected", nil, &resp)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return exitErr(exitBackendFailed)
	}

	if jsonOutput {
		enc, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(enc))
	} else {
		for _, m := range resp.Models {
			reachable := dim("unreachable")
			if m.RuntimeRef == nil || m.RuntimeRef.Reachable {
				reachable = green("reachable")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-40s %-10s %s\n", m.Ref(), m.ProviderName, reachable)
		}
		fmt.Fprintln(cmd.OutOrStdout(), dim(fmt.Sprintf("last_scan=%s cache_valid=%v", resp.LastScan, resp.CacheValid)))
	}
	return exitErrIfNotOK(status)
}

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Force the running daemon to re-read its config file",
	RunE:  runReload,
}

func runReload(cmd *cobra.Command, args []string) error {
	status, err := newAPIClient().do("POST", "/router/config/reload", nil, nil)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return exitErr(exitBackendFailed)
	}
	if status != 200 {
		fmt.Fprintln(cmd.ErrOrStderr(), red("reload rejected: config is invalid"))
		return exitErr(exitConfigError)
	}
	fmt.Fprintln(cmd.OutOrStdout(), green("configuration reloaded"))
	return nil
}

// exitErrIfNotOK maps a non-2xx status to its exit code family, or
// returns nil on success, so read-only commands don't repeat the
// pattern inline.
func exitErrIfNotOK(status int) error {
	if code := statusExitCode(status); code != exitSuccess {
		return exitErr(code)
	}
	return nil
}
