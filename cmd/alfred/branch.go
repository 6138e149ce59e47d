package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leonletto/alfred/internal/cli"
)

func branchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "branch",
		Short: "Create, list and clean up branches",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(branchNewCmd())
	cmd.AddCommand(branchCleanCmd())
	cmd.AddCommand(branchListCmd())
	return cmd
}

func branchNewCmd() *cobra.Command {
	var flagDescribe string

	cmd := &cobra.Command{
		Use:     "new [name]",
		Aliases: []string{"create"},
		Short:   "Create and check out a branch",
		Long: `Create and check out a branch. Without a name, --describe asks the
assistant to name the branch from a description. Names are lowercased and
characters other than letters, digits, '/', '_' and '-' become '-'.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			if len(args) == 1 {
				name = args[0]
			} else if strings.TrimSpace(flagDescribe) == "" {
				return fmt.Errorf("give a branch name or --describe")
			}
			e, err := loadEnv()
			if err != nil {
				return err
			}
			branch, err := cli.NewBranch(cmd.Context(), e.assistant(), flagRepo, name, flagDescribe)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(map[string]string{"branch": branch})
			}
			e.out.Success("Created and switched to %s", branch)
			return nil
		},
	}

	cmd.Flags().StringVar(&flagDescribe, "describe", "", "Describe the work to get a suggested name")
	return cmd
}

func branchCleanCmd() *cobra.Command {
	var flagForce bool

	cmd := &cobra.Command{
		Use:     "clean",
		Aliases: []string{"cleanup"},
		Short:   "Delete branches merged into main",
		Long: `Delete local branches already merged into main (or master). The
checked-out branch is kept. Without --force the merged branches are only
listed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := cli.CleanBranches(cmd.Context(), flagRepo, !flagForce)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(res)
			}
			out := cliOut(cmd)
			switch {
			case len(res.Merged) == 0:
				out.Info("No merged branches to clean up")
			case res.DryRun:
				out.Heading("Branches merged into %s:", res.Base)
				for _, b := range res.Merged {
					out.Println("  " + b)
				}
				out.Dim("Run with --force to delete them")
			default:
				for _, b := range res.Deleted {
					out.Success("Deleted %s", b)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&flagForce, "force", "f", false, "Delete the merged branches")
	return cmd
}

func branchListCmd() *cobra.Command {
	var flagAll bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List branches",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := cli.ListBranches(cmd.Context(), flagRepo, flagAll)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(list)
			}
			out := cliOut(cmd)
			out.Heading("Local branches:")
			for _, b := range list.Local {
				marker := "  "
				if b == list.Current {
					marker = "* "
				}
				out.Println(marker + b)
			}
			if len(list.Remote) > 0 {
				out.Heading("Remote branches:")
				for _, b := range list.Remote {
					out.Println("  " + b)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&flagAll, "all", "a", false, "Include remote-tracking branches")
	return cmd
}
