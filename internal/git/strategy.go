package git

import (
	"context"
	"path"
	"strings"

	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/buildworker/internal/config"
	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
	"git.home.luguber.info/inful/buildworker/internal/retry"
)

// Checkout names the commit to materialise and where it comes from.
type Checkout struct {
	RepoName   string
	RemoteName string
	RepoURL    string
	Commit     string
}

// MirrorName is the directory name of the repository's mirror.
func (c Checkout) MirrorName() string {
	if c.RepoName != "" {
		return c.RepoName
	}
	base := path.Base(strings.TrimSuffix(strings.TrimRight(c.RepoURL, "/"), ".git"))
	if i := strings.LastIndex(base, ":"); i >= 0 {
		base = base[i+1:]
	}
	return base
}

func (c Checkout) remote() string {
	if c.RemoteName == "" {
		return "origin"
	}
	return c.RemoteName
}

// Strategy populates workingDir with a checkout of co.Commit. A commit that
// cannot be found yields *RefNotFoundError.
type Strategy interface {
	CloneAndCheckout(ctx context.Context, workingDir string, co Checkout) error
}

// Options configure strategy construction.
type Options struct {
	// PartitionDir holds mirrors and attempt working copies.
	PartitionDir string
	SharedRoot   string
	Runner       Runner
	Clock        clockwork.Clock
	FetchPolicy  retry.Policy
}

// NewStrategy maps a configured name onto an implementation.
func NewStrategy(name config.GitStrategy, opts Options) (Strategy, error) {
	if opts.Runner == nil {
		opts.Runner = NewCLI()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	switch name {
	case config.GitStrategyLocalCache:
		return NewLocalCache(opts.PartitionDir, opts.Runner, opts.Clock, opts.FetchPolicy), nil
	case config.GitStrategySharedCache:
		if opts.SharedRoot == "" {
			return nil, errors.ConfigError("git_shared_root required for sharedcache.").Build()
		}
		return NewSharedCache(opts.SharedRoot, opts.Runner), nil
	default:
		return nil, errors.ConfigError("unknown git strategy").WithContext("value", string(name)).Build()
	}
}
