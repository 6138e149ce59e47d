package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leonletto/alfred/internal/cli"
	"github.com/leonletto/alfred/internal/config"
	"github.com/leonletto/alfred/internal/paths"
)

func configCmd() *cobra.Command {
	var (
		flagModel       string
		flagReset       bool
		flagPort        uint16
		flagIdleTimeout uint32
		flagAutoStart   bool
	)

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change alfred settings",
		Long: `Show the effective configuration, or change it with flags.

Settings are stored in config.yaml in the alfred directory. ALFRED_*
environment variables override the file at runtime but are never saved.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}

			u := cli.ConfigUpdate{Reset: flagReset}
			flags := cmd.Flags()
			if flags.Changed("model") {
				u.Model = &flagModel
			}
			if flags.Changed("port") {
				u.Port = &flagPort
			}
			if flags.Changed("idle-timeout") {
				u.IdleTimeout = &flagIdleTimeout
			}
			if flags.Changed("auto-start") {
				u.AutoStart = &flagAutoStart
			}

			cfg := e.cfg
			if !u.Empty() {
				if cfg, err = cli.UpdateConfig(paths.ConfigFile(e.dir), u); err != nil {
					return err
				}
				if !flagJSON {
					if u.Reset {
						e.out.Success("Configuration reset to defaults")
					} else {
						e.out.Success("Configuration saved")
					}
				}
			}

			if flagJSON {
				return printJSON(configView(cfg, e.dir))
			}
			fmt.Print(cli.FormatConfig(cfg, e.dir))
			return nil
		},
	}

	cmd.Flags().StringVar(&flagModel, "model", "", "Model file path (empty for the default)")
	cmd.Flags().BoolVar(&flagReset, "reset", false, "Reset every setting to its default")
	cmd.Flags().Uint16Var(&flagPort, "port", config.DefaultPort, "Daemon port")
	cmd.Flags().Uint32Var(&flagIdleTimeout, "idle-timeout", config.DefaultIdleTimeoutMinutes, "Daemon idle timeout in minutes (0 = never)")
	cmd.Flags().BoolVar(&flagAutoStart, "auto-start", false, "Start the daemon automatically when it is not running")
	return cmd
}

func configView(cfg *config.Config, dir string) map[string]any {
	return map[string]any{
		"model_path":           cfg.ResolvedModelPath(dir),
		"runner":               cfg.Runner,
		"log_level":            cfg.LogLevel,
		"port":                 cfg.Daemon.Port,
		"idle_timeout_minutes": cfg.Daemon.IdleTimeoutMinutes,
		"auto_start":           cfg.Daemon.AutoStart,
	}
}
