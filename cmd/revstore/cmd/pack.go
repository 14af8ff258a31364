package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/packline/revstore/internal"
	"github.com/packline/revstore/pkg/core"
)

var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Pack all closed shards",
	Long: "Consolidate every closed shard into a pack file with its indexes and pack the " +
		"revision properties alongside. Interrupting a pack is safe: the watermark moves one " +
		"shard at a time and a later pack resumes where this one stopped.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		if revstoreFlags.pack.memPoll {
			if err := internal.MemPoll(internal.MemPollParams{
				LoopLogMs: 1000,
				Logger:    cliLogger(),
			}); err != nil {
				wrapFatalln("memory polling", err)
				return
			}
		}
		r, err := core.Open(ctx, repoPath(), repoOptions()...)
		if err != nil {
			wrapFatalln("open repository", err)
			return
		}
		defer func() { _ = r.Close() }()

		err = r.Pack(ctx, core.Notify(func(shard int64, action core.PackAction) {
			switch action {
			case core.PackActionStart:
				infoLogger.Printf("packing shard %d", shard)
			case core.PackActionEnd:
				infoLogger.Printf("packed shard %d", shard)
			}
		}))
		if err != nil {
			wrapFatalln("pack", err)
			return
		}
		info, err := r.Info(ctx)
		if err != nil {
			wrapFatalln("read repository info", err)
			return
		}
		infoLogger.Printf("watermark now at revision %d", info.MinUnpacked)
	},
}

func init() {
	addMemPollFlag(packCmd)
	rootCmd.AddCommand(packCmd)
}
