package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leonletto/alfred/internal/cli"
)

func commitMsgCmd() *cobra.Command {
	var flagDiffFile string

	cmd := &cobra.Command{
		Use:   "commit-msg",
		Short: "Suggest a commit message for the staged changes",
		Long: `Suggest a conventional commit message.

Reads the staged diff of the repository by default. Use --diff-file to read
a diff from a file, or --diff-file - to read it from stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			msg, err := cli.CommitMessage(cmd.Context(), e.assistant(), cli.DiffSource{
				File:  flagDiffFile,
				Stdin: os.Stdin,
				Repo:  flagRepo,
			})
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(map[string]string{"message": msg})
			}
			fmt.Println(msg)
			return nil
		},
	}

	cmd.Flags().StringVar(&flagDiffFile, "diff-file", "", "Read the diff from a file (- for stdin)")
	return cmd
}

func branchNameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "branch-name <description>",
		Short: "Suggest a branch name for a description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			name, err := cli.BranchName(cmd.Context(), e.assistant(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(map[string]string{"branch": name})
			}
			fmt.Println(name)
			return nil
		},
	}
}

func resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve [file]",
		Short: "Suggest resolutions for merge conflicts",
		Long: `Suggest merged content for a conflicted file, or for every conflicted
file in the repository when no file is given. Nothing is written to disk.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			var file string
			if len(args) == 1 {
				file = args[0]
			}
			res, err := cli.ResolveConflicts(cmd.Context(), e.assistant(), flagRepo, file)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(res)
			}
			for _, r := range res {
				e.out.Heading("%s", r.File)
				e.out.Println(r.Suggestion)
			}
			return nil
		},
	}
}

func rebasePlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebase-plan <onto>",
		Short: "Suggest a strategy for rebasing the current branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			plan, commits, err := cli.RebasePlan(cmd.Context(), e.assistant(), flagRepo, args[0])
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(map[string]any{"onto": args[0], "commits": commits, "plan": plan})
			}
			e.out.Heading("%d commit(s) onto %s", len(commits), args[0])
			for _, c := range commits {
				e.out.Dim("  %s", c)
			}
			e.out.Heading("Suggested strategy")
			e.out.Println(plan)
			return nil
		},
	}
}
