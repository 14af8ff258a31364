package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/packline/revstore/pkg/core"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a repository",
	Long: "Create an empty repository at the --repo path. " +
		"The repository starts at revision 0 and uses the current format unless told otherwise.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		opts := append(repoOptions(),
			core.ShardSize(revstoreFlags.create.shardSize),
			core.Format(revstoreFlags.create.format),
			core.Compression(revstoreFlags.create.compress),
			core.CacheNamespace(revstoreFlags.create.cacheNamespace),
		)
		if revstoreFlags.create.physical {
			opts = append(opts, core.PhysicalAddressing())
		}
		if revstoreFlags.create.linear {
			opts = append(opts, core.LinearLayout())
		}
		if size := int64(revstoreFlags.create.revpropPackSize); size > 0 {
			opts = append(opts, core.RevpropPackSize(size))
		}
		r, err := core.Create(ctx, repoPath(), opts...)
		if err != nil {
			wrapFatalln("create repository", err)
			return
		}
		defer func() { _ = r.Close() }()
		infoLogger.Printf("created repository %s (uuid %s)", repoPath(), r.UUID())
	},
}

func init() {
	addShardSizeFlag(createCmd)
	addFormatFlag(createCmd)
	addPhysicalFlag(createCmd)
	addLinearFlag(createCmd)
	addRevpropPackSizeFlag(createCmd)
	addCompressFlag(createCmd)
	addCacheNamespaceFlag(createCmd)
	rootCmd.AddCommand(createCmd)
}
