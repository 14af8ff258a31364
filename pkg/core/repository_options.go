package core

import (
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/packline/revstore/pkg/logger"
	"github.com/packline/revstore/pkg/model"
	"github.com/packline/revstore/pkg/storage"
	"github.com/packline/revstore/pkg/storage/localfs"
)

// RepoOption sets options for Create and Open
type RepoOption func(*repoSettings)

type repoSettings struct {
	fs           afero.Fs
	shardSize    int64
	formatNumber int
	physical     bool
	linear       bool

	l      *zap.Logger
	tracer opentracing.Tracer

	// config.yaml overrides, applied on top of the file
	revpropPackSize int64 // 0 keeps the configured value
	compress        *bool
	cacheNamespace  string
	cacheSize       int // < 0 keeps the configured value

	repCache    bool
	repCacheDir string
}

func defaultRepoSettings() repoSettings {
	return repoSettings{
		shardSize:    model.DefaultShardSize,
		formatNumber: model.CurrentFormat,
		l:            logger.MustGetLogger(logger.LogLevelNone),
		tracer:       opentracing.GlobalTracer(),
		cacheSize:    -1,
	}
}

// backend builds the store a repository at path lives on. Without an
// explicit Backend the path names a directory on the OS filesystem.
func (rs repoSettings) backend(path string) (storage.Store, string, error) {
	base := rs.fs
	osPath := ""
	if base == nil {
		base = afero.NewOsFs()
		osPath = path
	}
	store, err := localfs.NewAtomic(afero.NewBasePathFs(base, path))
	if err != nil {
		return nil, "", err
	}
	return store, osPath, nil
}

// Backend stores the repository on fs instead of the OS filesystem.
// The repository path is then interpreted relative to fs.
func Backend(fs afero.Fs) RepoOption {
	return func(rs *repoSettings) {
		rs.fs = fs
	}
}

// ShardSize sets the number of revisions per shard for Create
func ShardSize(n int64) RepoOption {
	return func(rs *repoSettings) {
		if n > 0 {
			rs.shardSize = n
		}
	}
}

// Format makes Create write an older repository format
func Format(n int) RepoOption {
	return func(rs *repoSettings) {
		rs.formatNumber = n
	}
}

// PhysicalAddressing makes Create lay out revisions with physical
// addressing, the mode formats before 7 are limited to.
func PhysicalAddressing() RepoOption {
	return func(rs *repoSettings) {
		rs.physical = true
	}
}

// LinearLayout makes Create write a legacy unsharded repository. Linear
// repositories never pack.
func LinearLayout() RepoOption {
	return func(rs *repoSettings) {
		rs.linear = true
		rs.physical = true
	}
}

// Logger sets the logger used by the handle
func Logger(l *zap.Logger) RepoOption {
	return func(rs *repoSettings) {
		if l != nil {
			rs.l = l
		}
	}
}

// Tracer sets the tracer instrumenting storage access
func Tracer(t opentracing.Tracer) RepoOption {
	return func(rs *repoSettings) {
		if t != nil {
			rs.tracer = t
		}
	}
}

// RevpropPackSize overrides the configured revprop pack size limit
func RevpropPackSize(n int64) RepoOption {
	return func(rs *repoSettings) {
		rs.revpropPackSize = n
	}
}

// Compression toggles zstd compression of revprop pack bodies
func Compression(on bool) RepoOption {
	return func(rs *repoSettings) {
		rs.compress = &on
	}
}

// CacheNamespace shares the metadata cache with every handle opened
// under the same namespace.
func CacheNamespace(ns string) RepoOption {
	return func(rs *repoSettings) {
		rs.cacheNamespace = ns
	}
}

// CacheSize overrides the metadata cache capacity, 0 disables caching
func CacheSize(n int) RepoOption {
	return func(rs *repoSettings) {
		if n >= 0 {
			rs.cacheSize = n
		}
	}
}

// WithRepCache opens the content index of the repository, creating it
// if needed. The index lives in dir, or under the repository directory
// when dir is empty. It requires a real directory even for repositories
// on a memory backend.
func WithRepCache(dir string) RepoOption {
	return func(rs *repoSettings) {
		rs.repCache = true
		rs.repCacheDir = dir
	}
}
