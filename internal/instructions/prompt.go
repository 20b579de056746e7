// Package instructions resolves the system prompt sent ahead of every
// conversation.
package instructions

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// MaxPromptFileBytes caps how much of a prompt file is read.
const MaxPromptFileBytes = 64 * 1024

// ErrPromptTooLarge is returned when a prompt file exceeds MaxPromptFileBytes.
var ErrPromptTooLarge = errors.New("system prompt file too large")

// LoadFile reads a prompt file, trimming surrounding whitespace.
func LoadFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open system prompt: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxPromptFileBytes+1))
	if err != nil {
		return "", fmt.Errorf("read system prompt %s: %w", path, err)
	}
	if len(data) > MaxPromptFileBytes {
		return "", fmt.Errorf("%s: %w (limit %d bytes)", path, ErrPromptTooLarge, MaxPromptFileBytes)
	}
	return strings.TrimSpace(string(data)), nil
}

// Resolve joins the inline prompt and the contents of file (if any) with a
// blank line. Either may be empty; both empty means no system prompt.
func Resolve(inline, file string) (string, error) {
	var parts []string
	if s := strings.TrimSpace(inline); s != "" {
		parts = append(parts, s)
	}
	if file != "" {
		s, err := LoadFile(file)
		if err != nil {
			return "", err
		}
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}
