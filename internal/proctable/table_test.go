package proctable

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePgrep(t *testing.T) {
	out := "100 /usr/bin/foo --serve\n  \nbogus line\n200 bar\n-3 negative\n"
	assert.Equal(t, []Process{
		{PID: 100, Command: "/usr/bin/foo --serve"},
		{PID: 200, Command: "bar"},
	}, ParsePgrep(out))
	assert.Empty(t, ParsePgrep(""))
}

func TestBasename(t *testing.T) {
	assert.Equal(t, "nginx", Basename("/usr/sbin/nginx -g daemon off;"))
	assert.Equal(t, "python3", Basename("python3 server.py"))
	assert.Equal(t, "", Basename("   "))
}

func writeProc(t *testing.T, root string, pid, cmdline, comm string) {
	t.Helper()
	dir := filepath.Join(root, pid)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cmdline"), []byte(cmdline), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "comm"), []byte(comm+"\n"), 0o644))
}

func TestProcFSMatch(t *testing.T) {
	root := t.TempDir()
	writeProc(t, root, "300", "/usr/sbin/nginx\x00-g\x00daemon off;\x00", "nginx")
	writeProc(t, root, "20", "/usr/bin/nginx-helper\x00", "nginx-helper")
	writeProc(t, root, "7", "", "kworker/0:1")
	writeProc(t, root, "42", "/bin/bash\x00", "bash")

	lister, err := NewProcFSAt(root)
	require.NoError(t, err)

	got, err := lister.Match(context.Background(), regexp.MustCompile("nginx"))
	require.NoError(t, err)
	assert.Equal(t, []Process{
		{PID: 20, Command: "/usr/bin/nginx-helper"},
		{PID: 300, Command: "/usr/sbin/nginx -g daemon off;"},
	}, got)

	got, err = lister.Match(context.Background(), regexp.MustCompile("^kworker"))
	require.NoError(t, err)
	assert.Equal(t, []Process{{PID: 7, Command: "kworker/0:1"}}, got)
}
