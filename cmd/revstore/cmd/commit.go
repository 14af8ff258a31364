package cmd

import (
	"context"
	"io/ioutil"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/packline/revstore/pkg/core"
	"github.com/packline/revstore/pkg/model"
)

func commitContent() []byte {
	switch revstoreFlags.commit.file {
	case "":
		return nil
	case "-":
		data, err := ioutil.ReadAll(os.Stdin)
		if err != nil {
			wrapFatalln("reading stdin", err)
		}
		return data
	default:
		data, err := ioutil.ReadFile(revstoreFlags.commit.file)
		if err != nil {
			wrapFatalln("reading content", err)
		}
		return data
	}
}

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Commit a new revision",
	Long: "Commit the given content as the next revision. " +
		"The revision number is assigned at commit time: concurrent committers are sequenced, never lost.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		r, err := core.Open(ctx, repoPath(), repoOptions()...)
		if err != nil {
			wrapFatalln("open repository", err)
			return
		}
		defer func() { _ = r.Close() }()

		txn, err := r.Begin(ctx, model.RevNum(revstoreFlags.commit.base))
		if err != nil {
			wrapFatalln("begin transaction", err)
			return
		}
		if content := commitContent(); content != nil {
			if err := txn.SetContent(ctx, content); err != nil {
				wrapFatalln("set content", err)
				return
			}
		}
		if revstoreFlags.commit.message != "" {
			if err := txn.SetProperty(ctx, model.PropLog, revstoreFlags.commit.message); err != nil {
				wrapFatalln("set log message", err)
				return
			}
		}
		if revstoreFlags.commit.author != "" {
			if err := txn.SetProperty(ctx, model.PropAuthor, revstoreFlags.commit.author); err != nil {
				wrapFatalln("set author", err)
				return
			}
		}
		for _, prop := range revstoreFlags.commit.properties {
			kv := strings.SplitN(prop, "=", 2)
			if len(kv) != 2 || kv[0] == "" {
				wrapFatalWithCodef(2, "property %q is not name=value", prop)
				return
			}
			if err := txn.SetProperty(ctx, kv[0], kv[1]); err != nil {
				wrapFatalln("set property", err)
				return
			}
		}
		rev, err := txn.Commit(ctx)
		if err != nil {
			wrapFatalln("commit", err)
			return
		}
		infoLogger.Printf("committed revision %d", rev)
	},
}

func init() {
	requiredFlags := []string{addMessageFlag(commitCmd)}
	addAuthorFlag(commitCmd)
	addFileFlag(commitCmd)
	addBaseFlag(commitCmd)
	addPropertyFlag(commitCmd)

	for _, flag := range requiredFlags {
		if err := commitCmd.MarkFlagRequired(flag); err != nil {
			logFatalln(err)
		}
	}
	rootCmd.AddCommand(commitCmd)
}
