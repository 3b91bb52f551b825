package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/afero"

	"github.com/parleyhq/parley/src/sandbox"
)

// ReadFileName is the read_file tool's name.
const ReadFileName = "read_file"

const readFileDescription = `Read a file from the filesystem as text.

Usage notes:
- An optional limit restricts the result to the first N lines.
- Output longer than 30000 characters is truncated.`

// ReadFileInput holds the parameters for read_file.
type ReadFileInput struct {
	Path  string `json:"path" required:"true" description:"The file path to read"`
	Limit int    `json:"limit,omitempty" description:"Maximum number of lines to return"`
}

// ReadFileTool reads files fully as text, with an optional line limit that
// keeps the beginning of the file.
func ReadFileTool(fs afero.Fs) sandbox.Tool {
	return sandbox.MustGenericTool(ReadFileName, readFileDescription, func(ctx context.Context, input ReadFileInput) (string, error) {
		if input.Path == "" {
			return "", fmt.Errorf("path is required")
		}

		data, err := afero.ReadFile(fs, input.Path)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", input.Path, err)
		}

		content := string(data)
		if input.Limit > 0 {
			lines := strings.Split(content, "\n")
			if len(lines) > input.Limit {
				content = strings.Join(lines[:input.Limit], "\n") + truncationMarker
			}
		}

		return orPlaceholder(truncateOutput(content)), nil
	})
}
