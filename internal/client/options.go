package client

import (
	"log/slog"

	"meshi/internal/featureflags"
)

// Options tune controller behavior.
type Options struct {
	// GateCommentsOnVisibility keeps a post's comment subscription open only
	// while its comments are shown. Off by default: post items subscribe as
	// soon as they mount.
	GateCommentsOnVisibility bool
	Logger                   *slog.Logger
}

// OptionsFromFlags reads the client switches from a feature flag snapshot
// such as the one served at /api/feature-flags.
func OptionsFromFlags(flags map[string]bool) Options {
	return Options{GateCommentsOnVisibility: flags[featureflags.CommentsOnlyVisible]}
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}
