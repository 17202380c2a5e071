package main

import (
	"log/slog"

	"github.com/SHINZO111/llm-smart-router/pkg/logging"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var rootLogger *slog.Logger

// colorEnabled gates ANSI styling on stdout, checked via go-isatty
// rather than assumed.
var colorEnabled = isatty.IsTerminal(uintptr(1))

var jsonOutput bool

var rootCmd = &cobra.Command{
	Use:   "router",
	Short: "An intelligent routing layer in front of local and cloud LLM backends",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		rootLogger = logging.New(logging.Config{Level: logging.LevelInfo, Service: "router-cli", JSON: false})
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print machine-readable JSON output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(reloadCmd)
	rootCmd.AddCommand(conversationCmd)
}

// Execute runs the CLI and returns the process exit code, translating
// an *exitError carried up through RunE.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return exitSuccess
	}
	if ee, ok := err.(*exitError); ok {
		return ee.code
	}
	return exitUsageError
}

func colorize(code, s string) string {
	if !colorEnabled {
		return s
	}
	return "\x1b[" + code + "m" + s + "\x1b[0m"
}

func green(s string) string { return colorize("32", s) }
func red(s string) string   { return colorize("31", s) }
func dim(s string) string   { return colorize("2", s) }
