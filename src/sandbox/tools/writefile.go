package tools

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/parleyhq/parley/src/sandbox"
)

// WriteFileName is the write_file tool's name.
const WriteFileName = "write_file"

const writeFileDescription = `Write content to a file, overwriting it if it exists.

Usage notes:
- Parent directories are created as needed.
- The result reports how many bytes were written.`

// WriteFileInput holds the parameters for write_file.
type WriteFileInput struct {
	Path    string `json:"path" required:"true" description:"The file path to write"`
	Content string `json:"content" required:"true" description:"The content to write"`
}

// WriteFileTool writes content fully, creating parent directories.
func WriteFileTool(fs afero.Fs) sandbox.Tool {
	return sandbox.MustGenericTool(WriteFileName, writeFileDescription, func(ctx context.Context, input WriteFileInput) (string, error) {
		if input.Path == "" {
			return "", fmt.Errorf("path is required")
		}

		if dir := filepath.Dir(input.Path); dir != "." {
			if err := fs.MkdirAll(dir, 0o755); err != nil {
				return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}

		if err := afero.WriteFile(fs, input.Path, []byte(input.Content), 0o644); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", input.Path, err)
		}

		return fmt.Sprintf("Wrote %d bytes to %s", len(input.Content), input.Path), nil
	})
}
