package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/leonletto/alfred/internal/cli"
)

func setupCmd() *cobra.Command {
	var (
		flagModel string
		flagList  bool
	)

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Download a model into the alfred directory",
		Long: `Download a GGUF model into the models directory and make it the
configured model. An existing file is reused.

Select a model with --model by catalogue number or file name; --list shows
the catalogue. The first entry is the default.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagList {
				if flagJSON {
					return printJSON(cli.Models)
				}
				out := cliOut(cmd)
				out.Heading("Available models:")
				for i, m := range cli.Models {
					out.Println(fmt.Sprintf("  %d. %-26s %s", i+1, m.Name, m.Size))
				}
				return nil
			}

			m, err := cli.FindModel(flagModel)
			if err != nil {
				return err
			}
			e, err := loadEnv()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if !flagJSON {
				e.out.Info("Downloading %s (%s)...", m.Name, m.Size)
			}
			res, err := cli.Setup(ctx, http.DefaultClient, e.dir, m)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(res)
			}
			if res.Downloaded {
				e.out.Success("Downloaded %s (%s)", m.Name, humanize.IBytes(uint64(res.Bytes))) //nolint:gosec // G115 - size is non-negative
			} else {
				e.out.Success("%s is already downloaded", m.Name)
			}
			e.out.Dim("Model: %s", res.Path)
			return nil
		},
	}

	cmd.Flags().StringVar(&flagModel, "model", "", "Catalogue number or file name of the model")
	cmd.Flags().BoolVar(&flagList, "list", false, "List the model catalogue")
	return cmd
}
