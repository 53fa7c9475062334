package core

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DumpErrorLog writes msg to a timestamped file under dir. It's used to keep the raw bodies
// behind malformed responses around for later inspection.
func DumpErrorLog(dir, name, msg string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("DumpErrorLog: %w", err)
	}

	filename := filepath.Join(dir, fmt.Sprintf("%s-%s.log", name, time.Now().Format("20060102150405.000")))
	if err := os.WriteFile(filename, []byte(msg), 0644); err != nil {
		return "", fmt.Errorf("DumpErrorLog: %w", err)
	}

	return filename, nil
}

// DefaultErrorLogsDir is where the binary keeps dumps, relative to the user's home.
func DefaultErrorLogsDir() string {
	baseDir, err := os.UserHomeDir()
	if err != nil {
		baseDir = "."
	}
	return filepath.Join(baseDir, errorLogsDir)
}

const errorLogsDir = ".arkchat/error_logs"
