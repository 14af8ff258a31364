package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/packline/revstore/pkg/core"
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Rebuild repository metadata",
	Long: "Derive the youngest revision and the pack watermark from the revision files actually " +
		"present and rewrite the sidecar metadata. Revision data is never touched. " +
		"Use this after a crash left the repository unopenable.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		if err := core.Recover(ctx, repoPath(), repoOptions()...); err != nil {
			wrapFatalln("recover", err)
			return
		}
		r, err := core.Open(ctx, repoPath(), repoOptions()...)
		if err != nil {
			wrapFatalln("open recovered repository", err)
			return
		}
		defer func() { _ = r.Close() }()
		youngest, err := r.Youngest(ctx)
		if err != nil {
			wrapFatalln("read youngest revision", err)
			return
		}
		infoLogger.Printf("recovered: youngest revision is %d", youngest)
	},
}

func init() {
	rootCmd.AddCommand(recoverCmd)
}
