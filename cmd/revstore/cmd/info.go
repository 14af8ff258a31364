package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/packline/revstore/pkg/core"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show repository layout and state",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		r, err := core.Open(ctx, repoPath(), repoOptions()...)
		if err != nil {
			wrapFatalln("open repository", err)
			return
		}
		defer func() { _ = r.Close() }()

		info, err := r.Info(ctx)
		if err != nil {
			wrapFatalln("read repository info", err)
			return
		}
		data, err := yaml.Marshal(info)
		if err != nil {
			wrapFatalln("render repository info", err)
			return
		}
		infoLogger.Print(string(data))
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
