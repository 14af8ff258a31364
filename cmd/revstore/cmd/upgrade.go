package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/packline/revstore/pkg/core"
)

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Upgrade the repository format",
	Long: "Bring the repository to the current format. Sharded repositories switch to logical " +
		"addressing at the next shard boundary, so nothing already on disk moves and older " +
		"revisions stay readable in place.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		if err := core.Upgrade(ctx, repoPath(), core.OpLogger(cliLogger())); err != nil {
			wrapFatalln("upgrade", err)
			return
		}
		r, err := core.Open(ctx, repoPath(), repoOptions()...)
		if err != nil {
			wrapFatalln("open upgraded repository", err)
			return
		}
		defer func() { _ = r.Close() }()
		info, err := r.Info(ctx)
		if err != nil {
			wrapFatalln("read repository info", err)
			return
		}
		infoLogger.Printf("upgraded to format %d", info.Format)
	},
}

func init() {
	rootCmd.AddCommand(upgradeCmd)
}
