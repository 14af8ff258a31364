package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/packline/revstore/pkg/core"
	"github.com/packline/revstore/pkg/model"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify repository integrity",
	Long: "Check the metadata, indexes and content checksums backing a revision range. " +
		"With no range the whole repository is verified. The first problem found aborts the run.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		r, err := core.Open(ctx, repoPath(), repoOptions()...)
		if err != nil {
			wrapFatalln("open repository", err)
			return
		}
		defer func() { _ = r.Close() }()

		start := model.RevNum(revstoreFlags.verify.start)
		end := model.RevNum(revstoreFlags.verify.end)
		if err := r.Verify(ctx, start, end); err != nil {
			wrapFatalln("verify", err)
			return
		}
		infoLogger.Println("verified: no problems found")
	},
}

func init() {
	addStartFlag(verifyCmd)
	addEndFlag(verifyCmd)
	rootCmd.AddCommand(verifyCmd)
}
