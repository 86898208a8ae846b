package main

import (
	"fmt"
	"os"

	"github.com/aretw0/appflow/internal/cli"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "appflow",
	Short: "appflow runs hierarchical state machines defined in YAML or JSON",
	Long: `appflow loads a flow definition, a tree of nodes whose reducers share one
state value, and drives it from the terminal, over HTTP or as MCP tools.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringP("flow", "f", "flow.yaml", "Flow definition file (.yaml, .yml or .json)")
	rootCmd.PersistentFlags().Bool("debug", false, "Log machine events to stderr")
	rootCmd.PersistentFlags().Bool("trace", false, "Export OpenTelemetry spans to stderr")
	rootCmd.PersistentFlags().String("redis", "", "Redis address mirroring sessions (e.g. localhost:6379)")
	rootCmd.PersistentFlags().String("tools", "", "Tools file allowing commands for the exec reducer")
	rootCmd.PersistentFlags().String("store", "", "Directory keeping a JSON snapshot per session")
	rootCmd.PersistentFlags().StringSlice("mask", nil, "Patterns of state keys masked in stored snapshots")
}

// flowPath returns --flow, or the first positional argument when the flag
// was not set.
func flowPath(cmd *cobra.Command, args []string) string {
	path, _ := cmd.Flags().GetString("flow")
	if !cmd.Flags().Changed("flow") && len(args) > 0 {
		path = args[0]
	}
	return path
}

func config(cmd *cobra.Command, args []string) cli.Config {
	debug, _ := cmd.Flags().GetBool("debug")
	trace, _ := cmd.Flags().GetBool("trace")
	redisAddr, _ := cmd.Flags().GetString("redis")
	storeDir, _ := cmd.Flags().GetString("store")
	maskKeys, _ := cmd.Flags().GetStringSlice("mask")
	toolsPath, _ := cmd.Flags().GetString("tools")
	return cli.Config{
		FlowPath:  flowPath(cmd, args),
		RedisAddr: redisAddr,
		StoreDir:  storeDir,
		ToolsPath: toolsPath,
		MaskKeys:  maskKeys,
		Debug:     debug,
		Trace:     trace,
	}
}
