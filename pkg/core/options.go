package core

import "go.uber.org/zap"

// PackAction tells a pack notification callback what stage a shard is at
type PackAction int

const (
	// PackActionStart is sent before a shard is packed
	PackActionStart PackAction = iota

	// PackActionEnd is sent after a shard has been packed and committed
	PackActionEnd
)

// NotifyFunc receives pack progress, one Start/End pair per shard, in
// strictly increasing shard order.
type NotifyFunc func(shard int64, action PackAction)

// CheckLevel selects how much verification a read performs
type CheckLevel int

const (
	// CheckBasic validates structure only: headers parse and sizes add up
	CheckBasic CheckLevel = iota

	// CheckIndexed additionally verifies recorded content checksums
	// wherever one exists (index entries, logical item headers)
	CheckIndexed
)

// Option sets options for individual core operations
type Option func(*Settings)

// Settings defines various settings for core operations
type Settings struct {
	notify NotifyFunc
	check  CheckLevel
	logger *zap.Logger
}

// Notify installs a pack progress callback
func Notify(fn NotifyFunc) Option {
	return func(s *Settings) {
		s.notify = fn
	}
}

// Check sets the verification level applied to reads
func Check(level CheckLevel) Option {
	return func(s *Settings) {
		s.check = level
	}
}

// OpLogger overrides the repository logger for one operation
func OpLogger(l *zap.Logger) Option {
	return func(s *Settings) {
		s.logger = l
	}
}

func (r *Repository) defaultSettings() Settings {
	return Settings{
		check:  CheckBasic,
		logger: r.l,
	}
}

func (r *Repository) settingsWith(opts []Option) Settings {
	s := r.defaultSettings()
	for _, apply := range opts {
		apply(&s)
	}
	return s
}
