package build

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildworker/internal/config"
	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
	"git.home.luguber.info/inful/buildworker/internal/job"
)

func TestNewStrategyRegistry(t *testing.T) {
	deps := Deps{Runners: func(string) Runner { return &fakeRunner{} }, Scanner: &noScan{}}

	s, err := NewStrategy(config.BuildStrategyBuildAll, deps)
	require.NoError(t, err)
	assert.IsType(t, &BuildAll{}, s)

	s, err = NewStrategy(config.BuildStrategyRandom, deps)
	require.NoError(t, err)
	assert.IsType(t, &RandomFail{}, s)

	s, err = NewStrategy(config.BuildStrategyNoOp, Deps{})
	require.NoError(t, err)
	assert.IsType(t, NoOp{}, s)

	_, err = NewStrategy("parallel", deps)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConfig))

	_, err = NewStrategy(config.BuildStrategyBuildAll, Deps{})
	require.Error(t, err)
}

func TestNoOp(t *testing.T) {
	ok, err := NoOp{}.ExecuteBuild(context.Background(), Request{})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, NoOp{}.LogFileGlobs())
}

func TestRandomFailDivisibleByThree(t *testing.T) {
	tests := []struct {
		usec int
		pass bool
	}{
		{usec: 300, pass: false},
		{usec: 301, pass: true},
		{usec: 302, pass: true},
	}
	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.usec), func(t *testing.T) {
			clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, tt.usec*1000, time.UTC))
			dir := t.TempDir()

			ok, err := NewRandomFail(clock).ExecuteBuild(context.Background(), Request{WorkDir: dir})
			require.NoError(t, err)
			assert.Equal(t, tt.pass, ok)

			data, err := os.ReadFile(filepath.Join(dir, "now.log"))
			require.NoError(t, err)
			assert.Equal(t, strconv.Itoa(tt.usec), string(data))
		})
	}
	assert.Equal(t, []string{"now.log"}, NewRandomFail(clockwork.NewFakeClock()).LogFileGlobs())
}

func TestRequestFor(t *testing.T) {
	j := job.BuildJob{AttemptID: "1", CommitRef: "abc", Branch: "main", BuildKind: "cucumber", TestCommand: "x", Timeout: time.Minute, Env: "prod"}
	req := RequestFor(j, "/work")
	assert.Equal(t, "abc", req.Commit)
	assert.Equal(t, "main", req.Branch)
	assert.Equal(t, "cucumber", req.BuildKind)
	assert.Equal(t, "/work", req.WorkDir)
	assert.Equal(t, "prod", req.Env)
}
