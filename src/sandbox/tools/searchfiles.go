package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/parleyhq/parley/src/sandbox"
)

// SearchFilesName is the search_files tool's name.
const SearchFilesName = "search_files"

const searchFilesDescription = `Find files under a base path whose name matches a glob pattern.

Usage notes:
- The pattern matches file names, not full paths (e.g. "*.go").
- Results are full paths, one per line, capped at 30000 characters.`

// SearchFilesInput holds the parameters for search_files.
type SearchFilesInput struct {
	Path    string `json:"path" required:"true" description:"The base directory to search under"`
	Pattern string `json:"pattern" required:"true" description:"Glob pattern matched against file names"`
}

// SearchFilesTool walks the tree under a base path collecting files whose
// names match the glob.
func SearchFilesTool(fs afero.Fs) sandbox.Tool {
	return sandbox.MustGenericTool(SearchFilesName, searchFilesDescription, func(ctx context.Context, input SearchFilesInput) (string, error) {
		if input.Path == "" || input.Pattern == "" {
			return "", fmt.Errorf("path and pattern are required")
		}
		if _, err := filepath.Match(input.Pattern, ""); err != nil {
			return "", fmt.Errorf("invalid pattern %q: %w", input.Pattern, err)
		}

		var b strings.Builder
		walkErr := afero.Walk(fs, input.Path, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				// Unreadable subtrees are skipped, not fatal.
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			if ok, _ := filepath.Match(input.Pattern, info.Name()); ok {
				b.WriteString(path)
				b.WriteString("\n")
			}
			return nil
		})
		if walkErr != nil {
			return "", fmt.Errorf("search failed under %s: %w", input.Path, walkErr)
		}

		if b.Len() == 0 {
			return "No files found", nil
		}
		return truncateOutput(b.String()), nil
	})
}
