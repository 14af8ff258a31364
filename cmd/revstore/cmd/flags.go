// Copyright © 2019 Packline

package cmd

import (
	"fmt"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/packline/revstore/pkg/core"
	"github.com/packline/revstore/pkg/logger"
	"github.com/packline/revstore/pkg/model"
)

type flagsT struct {
	root struct {
		repo     string
		logLevel string
		cpuProf  bool
	}
	create struct {
		shardSize       int64
		format          int
		physical        bool
		linear          bool
		revpropPackSize byteSizeValue
		compress        bool
		cacheNamespace  string
	}
	commit struct {
		message    string
		author     string
		file       string
		base       int64
		properties []string
	}
	verify struct {
		start int64
		end   int64
	}
	pack struct {
		memPoll bool
	}
}

var revstoreFlags = flagsT{}

// byteSizeValue parses size flags with human units (4096, 64KiB, 1MB).
// Zero means the flag was not set.
type byteSizeValue int64

var _ pflag.Value = (*byteSizeValue)(nil)

func (b *byteSizeValue) Set(raw string) error {
	size, err := units.RAMInBytes(raw)
	if err != nil {
		return err
	}
	if size <= 0 {
		return fmt.Errorf("size must be positive, got %q", raw)
	}
	*b = byteSizeValue(size)
	return nil
}

func (b *byteSizeValue) String() string {
	if *b == 0 {
		return ""
	}
	return units.BytesSize(float64(*b))
}

func (b *byteSizeValue) Type() string {
	return "size"
}

func addRepoFlag(cmd *cobra.Command) string {
	repo := "repo"
	cmd.PersistentFlags().StringVar(&revstoreFlags.root.repo, repo, "",
		"Path to the repository root directory")
	return repo
}

func addLogLevelFlag(cmd *cobra.Command) string {
	logLevel := "log-level"
	cmd.PersistentFlags().StringVar(&revstoreFlags.root.logLevel, logLevel, "",
		"Log level (none, info, debug)")
	return logLevel
}

func addCPUProfFlag(cmd *cobra.Command) string {
	cpuprof := "cpuprof"
	cmd.PersistentFlags().BoolVar(&revstoreFlags.root.cpuProf, cpuprof, false,
		"Write a CPU profile to ./cpu.prof")
	return cpuprof
}

func addShardSizeFlag(cmd *cobra.Command) string {
	shardSize := "shard-size"
	cmd.Flags().Int64Var(&revstoreFlags.create.shardSize, shardSize, model.DefaultShardSize,
		"Number of revisions per shard")
	return shardSize
}

func addFormatFlag(cmd *cobra.Command) string {
	format := "format"
	cmd.Flags().IntVar(&revstoreFlags.create.format, format, model.CurrentFormat,
		"Repository format number to create")
	return format
}

func addPhysicalFlag(cmd *cobra.Command) string {
	physical := "physical"
	cmd.Flags().BoolVar(&revstoreFlags.create.physical, physical, false,
		"Address new revisions physically even on formats that support logical addressing")
	return physical
}

func addLinearFlag(cmd *cobra.Command) string {
	linear := "linear"
	cmd.Flags().BoolVar(&revstoreFlags.create.linear, linear, false,
		"Lay revisions out linearly instead of sharded. Linear repositories never pack")
	return linear
}

func addRevpropPackSizeFlag(cmd *cobra.Command) string {
	revpropPackSize := "revprop-pack-size"
	cmd.Flags().Var(&revstoreFlags.create.revpropPackSize, revpropPackSize,
		"Property pack size limit, human units accepted (e.g. 64KiB). Defaults to the engine default")
	return revpropPackSize
}

func addCompressFlag(cmd *cobra.Command) string {
	compress := "compress-revprops"
	cmd.Flags().BoolVar(&revstoreFlags.create.compress, compress, false,
		"Compress property pack bodies with zstd")
	return compress
}

func addCacheNamespaceFlag(cmd *cobra.Command) string {
	cacheNamespace := "cache-namespace"
	cmd.Flags().StringVar(&revstoreFlags.create.cacheNamespace, cacheNamespace, "",
		"Share metadata caches between handles using the same namespace")
	return cacheNamespace
}

func addMessageFlag(cmd *cobra.Command) string {
	message := "message"
	cmd.Flags().StringVarP(&revstoreFlags.commit.message, message, "m", "",
		"The log message recorded with the revision")
	return message
}

func addAuthorFlag(cmd *cobra.Command) string {
	author := "author"
	cmd.Flags().StringVar(&revstoreFlags.commit.author, author, "",
		"The author recorded with the revision")
	return author
}

func addFileFlag(cmd *cobra.Command) string {
	file := "file"
	cmd.Flags().StringVar(&revstoreFlags.commit.file, file, "",
		"Path to the content to commit, - reads stdin. Omitted commits empty content")
	return file
}

func addBaseFlag(cmd *cobra.Command) string {
	base := "base"
	cmd.Flags().Int64Var(&revstoreFlags.commit.base, base, int64(model.InvalidRev),
		"Base revision the change was prepared against, -1 means the youngest")
	return base
}

func addPropertyFlag(cmd *cobra.Command) string {
	property := "property"
	cmd.Flags().StringSliceVar(&revstoreFlags.commit.properties, property, nil,
		"Extra revision property as name=value, repeatable")
	return property
}

func addStartFlag(cmd *cobra.Command) string {
	start := "start"
	cmd.Flags().Int64Var(&revstoreFlags.verify.start, start, int64(model.InvalidRev),
		"First revision to verify, -1 means revision 0")
	return start
}

func addEndFlag(cmd *cobra.Command) string {
	end := "end"
	cmd.Flags().Int64Var(&revstoreFlags.verify.end, end, int64(model.InvalidRev),
		"Last revision to verify, -1 means the youngest")
	return end
}

func addMemPollFlag(cmd *cobra.Command) string {
	memPoll := "mem-poll"
	cmd.Flags().BoolVar(&revstoreFlags.pack.memPoll, memPoll, false,
		"Log heap growth while packing")
	return memPoll
}

// repoPath resolves the repository argument common to all commands
func repoPath() string {
	if revstoreFlags.root.repo == "" {
		wrapFatalln("use --repo to name the repository", nil)
	}
	return revstoreFlags.root.repo
}

func cliLogger() *zap.Logger {
	l, err := logger.GetLogger(revstoreFlags.root.logLevel)
	if err != nil {
		wrapFatalln("log level", err)
	}
	return l
}

func repoOptions() []core.RepoOption {
	return []core.RepoOption{
		core.Logger(cliLogger()),
	}
}
