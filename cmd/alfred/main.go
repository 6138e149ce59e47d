package main

import (
	"encoding/json"
	"fmt"
	"os"
	goruntime "runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leonletto/alfred/internal/cli"
	"github.com/leonletto/alfred/internal/config"
	"github.com/leonletto/alfred/internal/llm"
	"github.com/leonletto/alfred/internal/logging"
	"github.com/leonletto/alfred/internal/paths"
	"github.com/leonletto/alfred/internal/service"
	"github.com/leonletto/alfred/internal/ui"
)

var (
	// Build info (set via ldflags).
	Version = "dev"
	Build   = "unknown"
)

var (
	// Global flags.
	flagRepo    string
	flagJSON    bool
	flagVerbose bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		ui.New(os.Stderr).Error("%v", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "alfred",
		Short: "Local AI assistant for git",
		Long: `Alfred suggests commit messages, branch names, conflict resolutions and
rebase strategies using a local language model.

The model is served by the alferd daemon when it is running and loaded in
process otherwise.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flagRepo, "repo", ".", "Repository path")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "JSON output for scripting")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "Debug output")

	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("alfred v{{.Version}} (build: " + Build + ", " + goruntime.Version() + ")\n")

	rootCmd.AddCommand(commitMsgCmd())
	rootCmd.AddCommand(branchNameCmd())
	rootCmd.AddCommand(branchCmd())
	rootCmd.AddCommand(resolveCmd())
	rootCmd.AddCommand(rebasePlanCmd())
	rootCmd.AddCommand(daemonCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(mcpCmd())
	rootCmd.AddCommand(setupCmd())
	rootCmd.AddCommand(versionCmd())
	return rootCmd
}

// env is the state every command needs: config, alfred directory, logger
// and the platform service manager.
type env struct {
	cfg     *config.Config
	dir     string
	logger  *zap.Logger
	out     *ui.Printer
	service service.Manager
}

func loadEnv() (*env, error) {
	dir, err := paths.EnsureDir()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.CLI(flagVerbose)

	svcOpts, err := service.DefaultOptions()
	if err != nil {
		return nil, err
	}
	svcOpts.Logger = logger

	return &env{
		cfg:     cfg,
		dir:     dir,
		logger:  logger,
		out:     ui.Stdout(),
		service: service.ForPlatform(goruntime.GOOS, svcOpts),
	}, nil
}

func (e *env) manager() *cli.DaemonManager {
	return cli.NewDaemonManager(e.dir, e.cfg,
		cli.WithServiceManager(e.service),
		cli.WithManagerLogger(e.logger),
	)
}

// assistant returns the daemon-first assistant with an in-process fallback.
func (e *env) assistant() llm.Assistant {
	engine := llm.NewCommandEngine(e.cfg.Runner, e.cfg.ResolvedModelPath(e.dir))
	return e.manager().Assistant(engine)
}

// cliOut prints to the command's output, which tests redirect.
func cliOut(cmd *cobra.Command) *ui.Printer {
	return ui.New(cmd.OutOrStdout())
}

func printJSON(v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(output))
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagJSON {
				return printJSON(map[string]string{
					"version": Version,
					"build":   Build,
					"go":      goruntime.Version(),
				})
			}
			fmt.Printf("alfred v%s (build: %s, %s)\n", Version, Build, goruntime.Version())
			return nil
		},
	}
}
