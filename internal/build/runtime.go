package build

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"

	"git.home.luguber.info/inful/buildworker/internal/logfields"
)

// RuntimeKind names a language toolchain manager.
type RuntimeKind string

const (
	RuntimeNone   RuntimeKind = ""
	RuntimeRuby   RuntimeKind = "ruby"
	RuntimeRVMRC  RuntimeKind = "rvmrc"
	RuntimeNode   RuntimeKind = "node"
	RuntimeGolang RuntimeKind = "go"
)

// Runtime is the activation chosen for a working copy.
type Runtime struct {
	Kind    RuntimeKind
	Version string
	// Source names the hint the choice came from.
	Source string
}

// Version values reach the prelude through these variables only.
const (
	envRubyVersion = "BUILDWORKER_RUBY_VERSION"
	envNodeVersion = "BUILDWORKER_NODE_VERSION"
	envGoVersion   = "BUILDWORKER_GO_VERSION"
)

const activationFailed = `|| { echo "runtime activation failed" >&2; exit 1; }`

// Prelude returns the shell text activating the runtime and the variables it reads.
func (r Runtime) Prelude() (string, map[string]string) {
	switch r.Kind {
	case RuntimeRuby:
		return `source "$HOME/.rvm/scripts/rvm" && rvm --install use "$` + envRubyVersion + `" ` + activationFailed,
			map[string]string{envRubyVersion: r.Version}
	case RuntimeRVMRC:
		return `source "$HOME/.rvm/scripts/rvm" && source .rvmrc ` + activationFailed, nil
	case RuntimeNode:
		return `export NVM_DIR="$HOME/.nvm"; source "$NVM_DIR/nvm.sh" && nvm install "$` + envNodeVersion + `" ` + activationFailed,
			map[string]string{envNodeVersion: r.Version}
	case RuntimeGolang:
		return `export GOTOOLCHAIN="go$` + envGoVersion + `"`, map[string]string{envGoVersion: r.Version}
	default:
		return "", nil
	}
}

var gemfileRuby = regexp.MustCompile(`^\s*ruby\s+['"]([^'"]+)['"]`)

// DetectRuntime picks the runtime for dir. An explicit rvm option wins, then
// pinned version files, then .rvmrc, then versions declared in manifests.
func DetectRuntime(dir string, options map[string]string) Runtime {
	if v := strings.TrimSpace(options["rvm"]); v != "" {
		return Runtime{Kind: RuntimeRuby, Version: v, Source: "options.rvm"}
	}

	if v := readPin(dir, ".ruby-version"); v != "" {
		return Runtime{Kind: RuntimeRuby, Version: strings.TrimPrefix(v, "ruby-"), Source: ".ruby-version"}
	}
	for _, name := range []string{".nvmrc", ".node-version"} {
		if v := readPin(dir, name); v != "" {
			return Runtime{Kind: RuntimeNode, Version: v, Source: name}
		}
	}
	if v := readPin(dir, ".go-version"); v != "" && validGoVersion(v) {
		return Runtime{Kind: RuntimeGolang, Version: v, Source: ".go-version"}
	}

	if fileExists(filepath.Join(dir, ".rvmrc")) {
		return Runtime{Kind: RuntimeRVMRC, Source: ".rvmrc"}
	}

	if v := firstMatch(filepath.Join(dir, "Gemfile"), gemfileRuby); v != "" {
		return Runtime{Kind: RuntimeRuby, Version: v, Source: "Gemfile"}
	}
	if v := packageJSONNode(filepath.Join(dir, "package.json")); v != "" {
		return Runtime{Kind: RuntimeNode, Version: v, Source: "package.json"}
	}
	if v := goModVersion(filepath.Join(dir, "go.mod")); v != "" {
		return Runtime{Kind: RuntimeGolang, Version: v, Source: "go.mod"}
	}
	return Runtime{}
}

// readPin returns the first non-comment line of a version file.
func readPin(dir, name string) string {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			return line
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func firstMatch(path string, re *regexp.Regexp) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if m := re.FindStringSubmatch(sc.Text()); m != nil {
			return m[1]
		}
	}
	return ""
}

// packageJSONNode returns engines.node when it names one version; ranges
// cannot be handed to nvm and are ignored.
func packageJSONNode(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var manifest struct {
		Engines struct {
			Node string `json:"node"`
		} `json:"engines"`
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		slog.Debug("Ignoring unparsable package.json", logfields.Path(path), logfields.Error(err))
		return ""
	}
	v := strings.TrimSpace(manifest.Engines.Node)
	if v == "" {
		return ""
	}
	if _, err := semver.StrictNewVersion(strings.TrimPrefix(v, "v")); err != nil {
		if _, cerr := semver.NewConstraint(v); cerr == nil {
			slog.Debug("Ignoring engines.node range", logfields.Path(path), slog.String("range", v))
		}
		return ""
	}
	return strings.TrimPrefix(v, "v")
}

func goModVersion(path string) string {
	v := firstMatch(path, regexp.MustCompile(`^go\s+(\S+)`))
	if v == "" || !validGoVersion(v) {
		return ""
	}
	return v
}

func validGoVersion(v string) bool {
	_, err := semver.NewVersion(strings.TrimPrefix(v, "go"))
	return err == nil
}
