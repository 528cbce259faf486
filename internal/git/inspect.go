package git

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"regexp"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
)

var fullHash = regexp.MustCompile(`^[0-9a-f]{40}$`)

// HasCommit reports whether rev names a commit present in the repository at path.
func HasCommit(path, rev string) (bool, error) {
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return false, err
	}
	hash := plumbing.NewHash(rev)
	if !fullHash.MatchString(rev) {
		resolved, err := repo.ResolveRevision(plumbing.Revision(rev))
		if err != nil {
			return false, nil
		}
		hash = *resolved
	}
	if _, err := repo.CommitObject(hash); err != nil {
		if stderrors.Is(err, plumbing.ErrObjectNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// HarmonizeRemote points remote at url, creating it if needed. It reports
// whether the configuration changed.
func HarmonizeRemote(path, remote, url string) (bool, error) {
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return false, err
	}
	cfg, err := repo.Config()
	if err != nil {
		return false, err
	}
	rc, ok := cfg.Remotes[remote]
	if ok && len(rc.URLs) > 0 && rc.URLs[0] == url {
		return false, nil
	}
	if !ok {
		rc = &config.RemoteConfig{Name: remote}
		cfg.Remotes[remote] = rc
	}
	rc.URLs = []string{url}
	if err := repo.SetConfig(cfg); err != nil {
		return false, err
	}
	return true, nil
}

// Submodule is a submodule as declared in .gitmodules plus its configured URL.
type Submodule struct {
	Name string
	Path string
	// URL is taken from .git/config when initialised, .gitmodules otherwise.
	URL string
}

// Submodules lists the submodules of the working tree at path.
func Submodules(path string) ([]Submodule, error) {
	declared, err := readModules(path)
	if err != nil {
		return nil, err
	}
	if len(declared) == 0 {
		return nil, nil
	}
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return nil, err
	}
	cfg, err := repo.Config()
	if err != nil {
		return nil, err
	}

	subs := make([]Submodule, 0, len(declared))
	for name, m := range declared {
		s := Submodule{Name: name, Path: m.Path, URL: m.URL}
		if c, ok := cfg.Submodules[name]; ok && c.URL != "" {
			s.URL = c.URL
		}
		if s.Path == "" {
			s.Path = name
		}
		subs = append(subs, s)
	}
	return subs, nil
}

func readModules(path string) (map[string]*config.Submodule, error) {
	data, err := os.ReadFile(filepath.Join(path, ".gitmodules"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	modules := config.NewModules()
	if err := modules.Unmarshal(data); err != nil {
		return nil, err
	}
	return modules.Submodules, nil
}

// RedirectSubmodules rewrites the configured URL of every initialised
// submodule in workTree whose URL matches the mirror's to the mirror's local
// checkout of that submodule. Submodules unknown to the mirror keep their
// network URL. It returns the names that were redirected.
func RedirectSubmodules(workTree, mirror string) ([]string, error) {
	wc, err := gogit.PlainOpen(workTree)
	if err != nil {
		return nil, err
	}
	wcCfg, err := wc.Config()
	if err != nil {
		return nil, err
	}
	if len(wcCfg.Submodules) == 0 {
		return nil, nil
	}
	mirrorSubs, err := Submodules(mirror)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]Submodule, len(mirrorSubs))
	for _, s := range mirrorSubs {
		byName[s.Name] = s
	}

	var redirected []string
	for name, sub := range wcCfg.Submodules {
		m, ok := byName[name]
		if !ok || m.URL != sub.URL {
			continue
		}
		local := filepath.Join(mirror, m.Path)
		if _, err := os.Stat(local); err != nil {
			continue
		}
		sub.URL = local
		redirected = append(redirected, name)
	}
	if len(redirected) == 0 {
		return nil, nil
	}
	if err := wc.SetConfig(wcCfg); err != nil {
		return nil, err
	}
	return redirected, nil
}
