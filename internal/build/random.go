package build

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
)

// RandomFail fails roughly one build in three. It exercises the reporting
// pipeline without needing a real test suite.
type RandomFail struct {
	clock clockwork.Clock
}

func NewRandomFail(clock clockwork.Clock) *RandomFail {
	return &RandomFail{clock: clock}
}

func (r *RandomFail) ExecuteBuild(_ context.Context, req Request) (bool, error) {
	usec := r.clock.Now().Nanosecond() / 1000
	path := filepath.Join(req.WorkDir, "now.log")
	if err := os.WriteFile(path, []byte(strconv.Itoa(usec)), 0o644); err != nil {
		return false, errors.FileSystemError("write now.log").WithCause(err).WithContext("path", path).Build()
	}
	return usec%3 != 0, nil
}

func (r *RandomFail) LogFileGlobs() []string { return []string{"now.log"} }
