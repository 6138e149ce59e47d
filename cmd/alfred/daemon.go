package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leonletto/alfred/internal/cli"
	"github.com/leonletto/alfred/internal/service"
)

func daemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the alferd model daemon",
		Long: `Manage alferd, the background process that keeps the model loaded
between alfred invocations.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(daemonStartCmd())
	cmd.AddCommand(daemonStopCmd())
	cmd.AddCommand(daemonStatusCmd())
	cmd.AddCommand(daemonInstallCmd())
	cmd.AddCommand(daemonUninstallCmd())
	return cmd
}

func daemonStartCmd() *cobra.Command {
	var flagWait bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			res, err := e.manager().Start(cmd.Context(), flagWait)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(res)
			}

			switch {
			case res.Starting:
				e.out.Info("Daemon is starting (PID %d)", res.PID)
			case res.AlreadyRunning:
				e.out.Success("Daemon is already running")
			case res.Ready:
				e.out.Success("Daemon started (PID %d)", res.PID)
			default:
				e.out.Success("Daemon starting in background (PID %d)", res.PID)
				e.out.Dim("Logs: %s", e.dir)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&flagWait, "wait", false, "Wait until the daemon answers before returning")
	return cmd
}

func daemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon gracefully",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			res, err := e.manager().Stop(cmd.Context())
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(res)
			}

			switch {
			case res.AlreadyStopped:
				e.out.Info("Daemon is not running")
			case res.Forced:
				e.out.Success("Daemon stopped (signalled PID %d)", res.PID)
			default:
				e.out.Success("Daemon stopped")
			}
			return nil
		},
	}
}

func daemonStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			result := e.manager().Status(cmd.Context())

			if flagJSON {
				return printJSON(result)
			}
			fmt.Print(cli.FormatDaemonStatus(result))
			return nil
		},
	}
}

func daemonInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install alferd as a login service (launchd or systemd)",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			path, err := e.manager().Install(cmd.Context())
			if err != nil {
				if errors.Is(err, service.ErrUnsupported) {
					return fmt.Errorf("service install is not supported on this platform")
				}
				return err
			}
			if flagJSON {
				return printJSON(map[string]any{"installed": true, "path": path})
			}
			e.out.Success("Service installed")
			e.out.Dim("Descriptor: %s", path)
			return nil
		},
	}
}

func daemonUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the alferd login service",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			removed, err := e.manager().Uninstall(cmd.Context())
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(map[string]bool{"removed": removed})
			}
			if removed {
				e.out.Success("Service uninstalled")
			} else {
				e.out.Info("Service is not installed")
			}
			return nil
		},
	}
}
