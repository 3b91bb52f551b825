package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/afero"

	"github.com/parleyhq/parley/src/sandbox"
)

// ListDirectoryName is the list_directory tool's name.
const ListDirectoryName = "list_directory"

const listDirectoryDescription = `List the immediate entries of a directory.

Each entry is reported on its own line with a [FILE] or [DIR] marker.`

// ListDirectoryInput holds the parameters for list_directory.
type ListDirectoryInput struct {
	Path string `json:"path" required:"true" description:"The directory path to list"`
}

// ListDirectoryTool lists immediate entries with a per-line type marker.
func ListDirectoryTool(fs afero.Fs) sandbox.Tool {
	return sandbox.MustGenericTool(ListDirectoryName, listDirectoryDescription, func(ctx context.Context, input ListDirectoryInput) (string, error) {
		if input.Path == "" {
			return "", fmt.Errorf("path is required")
		}

		entries, err := afero.ReadDir(fs, input.Path)
		if err != nil {
			return "", fmt.Errorf("failed to list %s: %w", input.Path, err)
		}

		if len(entries) == 0 {
			return "(empty directory)", nil
		}

		var b strings.Builder
		for _, entry := range entries {
			marker := "[FILE]"
			if entry.IsDir() {
				marker = "[DIR]"
			}
			fmt.Fprintf(&b, "%s %s\n", marker, entry.Name())
		}

		return truncateOutput(b.String()), nil
	})
}
