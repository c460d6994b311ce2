// Package commands provides CLI commands for localchat.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
)

var (
	// Version info (set at build time)
	Version   = "0.1.0"
	BuildTime = "unknown"
)

// rootCmd represents the base command
var rootCmd = NewRootCmd(NewDependencies())

// NewRootCmd builds the command tree around deps
func NewRootCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "localchat [prompt]",
		Short: "Terminal chat for local LLM runtimes",
		Long: `localchat is a terminal chat front-end for models served by a local
runtime such as Ollama or any OpenAI-compatible server (llama.cpp,
vLLM, LM Studio). Model loading and inference happen in the runtime.

Examples:
  localchat chat                        Start interactive chat
  localchat config                      Configure settings
  localchat models                      List model presets
  localchat "What is Go?"               Send a single query
  localchat -f prompt.md                Read prompt from file
  cat prompt.md | localchat             Read prompt from stdin
  localchat "Hello" -o response.md      Save response to file
  localchat -m llama3.2:3b --backend openai --base-url http://localhost:8080`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if v, _ := cmd.Flags().GetBool("version"); v {
				fmt.Fprintf(deps.Stdout, "localchat %s (built %s)\n", Version, BuildTime)
				return nil
			}

			rawOutput, _ := cmd.Flags().GetBool("raw")
			rawOutput = rawOutput || !isTTY(deps.Stdout)

			if file := flagString(cmd, "file"); file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("failed to read file: %w", err)
				}
				return runQuery(cmd.Context(), cmd, deps, string(data), rawOutput)
			}

			if stdinPiped(deps.Stdin) {
				data, err := io.ReadAll(deps.Stdin)
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				if strings.TrimSpace(string(data)) != "" {
					return runQuery(cmd.Context(), cmd, deps, string(data), rawOutput)
				}
			}

			if len(args) > 0 {
				return runQuery(cmd.Context(), cmd, deps, args[0], rawOutput)
			}

			// No input - show help
			return cmd.Help()
		},
	}

	// Global flags
	cmd.PersistentFlags().StringP("model", "m", "", "Model to load (e.g., phi3:mini)")
	cmd.PersistentFlags().String("backend", "", "Runtime protocol: ollama or openai")
	cmd.PersistentFlags().String("base-url", "", "Runtime address (overrides LOCALCHAT_BASE_URL and config)")
	cmd.PersistentFlags().String("log-level", "", "Log level: DEBUG, INFO, WARN or ERROR")
	cmd.Flags().StringP("output", "o", "", "Save response to file")
	cmd.Flags().StringP("file", "f", "", "Read prompt from file")
	cmd.Flags().Bool("raw", false, "Print the reply without decoration")
	cmd.Flags().BoolP("version", "v", false, "Show version and exit")

	cmd.SetOut(deps.Stdout)
	cmd.SetErr(deps.Stderr)

	// Add subcommands
	cmd.AddCommand(NewChatCmd(deps))
	cmd.AddCommand(NewConfigCmd(deps))
	cmd.AddCommand(NewModelsCmd(deps))
	cmd.AddCommand(NewProbeCmd(deps))

	return cmd
}

// stdinPiped reports whether r carries piped input rather than a terminal
func stdinPiped(r io.Reader) bool {
	if r == nil {
		return false
	}
	f, ok := r.(*os.File)
	if !ok {
		return true
	}
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
