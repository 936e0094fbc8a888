package tailf

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lines(hook *logtest.Hook, file string) []string {
	var out []string
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.InfoLevel && e.Data["file"] == file {
			out = append(out, e.Message)
		}
	}
	return out
}

func TestFollowerLogsLinesOfNewMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	logger, hook := logtest.NewNullLogger()
	f := New(dir, regexp.MustCompile(`^mysqld\.trace`), logrus.NewEntry(logger))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()
	select {
	case <-f.Started():
	case <-time.After(5 * time.Second):
		t.Fatal("follower did not start")
	}

	traced := filepath.Join(dir, "mysqld.trace.1234")
	fh, err := os.Create(traced)
	require.NoError(t, err)
	_, err = fh.WriteString("12:00:00.000001 read(3, \"\", 4096) = 0\npartial")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.log"), []byte("ignored\n"), 0o644))

	require.Eventually(t, func() bool {
		return len(lines(hook, "mysqld.trace.1234")) == 1
	}, 5*time.Second, 10*time.Millisecond)

	_, err = fh.WriteString(" line\n")
	require.NoError(t, err)
	require.NoError(t, fh.Close())

	require.Eventually(t, func() bool {
		return len(lines(hook, "mysqld.trace.1234")) == 2
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	got := lines(hook, "mysqld.trace.1234")
	assert.Equal(t, `12:00:00.000001 read(3, "", 4096) = 0`, got[0])
	assert.Equal(t, "partial line", got[1])
	assert.Empty(t, lines(hook, "other.log"))
}
