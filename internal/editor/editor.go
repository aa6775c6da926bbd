// Package editor opens files in the user's text editor.
package editor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ErrNoEditor is returned when no editor is configured or installed.
var ErrNoEditor = errors.New("no editor found: set $BTU_EDITOR, $VISUAL or $EDITOR")

// envVars are consulted in order before falling back to a known editor.
var envVars = []string{"BTU_EDITOR", "VISUAL", "EDITOR"}

var fallbackEditors = []string{"nvim", "vim", "vi", "nano"}

// Find returns the editor command to use.
func Find() (string, error) {
	for _, name := range envVars {
		if ed := strings.TrimSpace(os.Getenv(name)); ed != "" {
			return ed, nil
		}
	}
	for _, ed := range fallbackEditors {
		if path, err := exec.LookPath(ed); err == nil {
			return path, nil
		}
	}
	return "", ErrNoEditor
}

// Open runs editor on filePath in the foreground. The editor string is
// split on whitespace so values like "code --wait" work.
func Open(editor, filePath string) error {
	args := strings.Fields(editor)
	if len(args) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	args = append(args, filePath)
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run editor %s: %w", editor, err)
	}
	return nil
}
