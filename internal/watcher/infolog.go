package watcher

import (
	"fmt"
	"os"
	"path/filepath"
)

// CommandInfoFile is the per output directory record of traced commands.
const CommandInfoFile = "command_info.log"

func appendCommandInfo(dir string, pid int, command string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(dir, CommandInfoFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(f, "%d,%s\n", pid, command); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
