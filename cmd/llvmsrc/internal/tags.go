package internal

import (
	"fmt"

	"github.com/goplus/llvmsrc"
	"github.com/goplus/llvmsrc/internal/artifact"
	"github.com/goplus/llvmsrc/internal/vcs"
	"github.com/spf13/cobra"
)

var (
	tagsGit   string
	tagsLimit int
)

var tagsCmd = &cobra.Command{
	Use:   "tags [remote]",
	Short: "List LLVM release tags, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTags,
}

func init() {
	tagsCmd.Flags().StringVar(&tagsGit, "git", "", "git executable")
	tagsCmd.Flags().IntVarP(&tagsLimit, "limit", "n", 20, "Maximum number of tags to print, 0 for all")
	rootCmd.AddCommand(tagsCmd)
}

func runTags(cmd *cobra.Command, args []string) error {
	remote := llvmsrc.DefaultRemote
	if len(args) == 1 {
		remote = args[0]
	}
	tags, err := vcs.NewGitVCS(vcs.WithGitPath(tagsGit)).Tags(cmd.Context(), remote)
	if err != nil {
		return fmt.Errorf("list tags of %s: %w", remote, err)
	}
	tags = artifact.SortTags(tags)
	if tagsLimit > 0 && len(tags) > tagsLimit {
		tags = tags[:tagsLimit]
	}
	for _, t := range tags {
		fmt.Fprintln(cmd.OutOrStdout(), t)
	}
	return nil
}
