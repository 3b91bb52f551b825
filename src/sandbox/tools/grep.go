package tools

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"

	"github.com/parleyhq/parley/src/sandbox"
)

// GrepName is the grep tool's name.
const GrepName = "grep"

const grepDescription = `Search file contents under a path with a regular expression.

Usage notes:
- The search recurses into subdirectories.
- An optional include glob restricts which file names are searched.
- Matches are reported as path:line: content, capped at 30000 characters.
- Zero matches is a successful result, not an error.`

// GrepInput holds the parameters for grep.
type GrepInput struct {
	Pattern string `json:"pattern" required:"true" description:"The regular expression to search for"`
	Path    string `json:"path" required:"true" description:"The directory or file to search"`
	Include string `json:"include,omitempty" description:"Glob filter on file names (e.g. \"*.go\")"`
}

const noMatchesMessage = "No matches found"

// errStopWalk ends the walk early once the output cap is reached.
var errStopWalk = fmt.Errorf("output cap reached")

// GrepTool searches file contents recursively. A pattern with zero matches
// is a successful result; only real failures (bad regex, unreadable root)
// are errors.
func GrepTool(fs afero.Fs) sandbox.Tool {
	return sandbox.MustGenericTool(GrepName, grepDescription, func(ctx context.Context, input GrepInput) (string, error) {
		if input.Pattern == "" || input.Path == "" {
			return "", fmt.Errorf("pattern and path are required")
		}

		re, err := regexp.Compile(input.Pattern)
		if err != nil {
			return "", fmt.Errorf("invalid pattern %q: %w", input.Pattern, err)
		}
		if input.Include != "" {
			if _, err := filepath.Match(input.Include, ""); err != nil {
				return "", fmt.Errorf("invalid include glob %q: %w", input.Include, err)
			}
		}

		if _, err := fs.Stat(input.Path); err != nil {
			return "", fmt.Errorf("cannot search %s: %w", input.Path, err)
		}

		var b strings.Builder
		walkErr := afero.Walk(fs, input.Path, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			if input.Include != "" {
				if ok, _ := filepath.Match(input.Include, info.Name()); !ok {
					return nil
				}
			}
			if b.Len() > MaxOutputChars {
				return errStopWalk
			}
			grepFile(fs, path, re, &b)
			return nil
		})
		if walkErr != nil && walkErr != errStopWalk {
			return "", fmt.Errorf("search failed under %s: %w", input.Path, walkErr)
		}

		if b.Len() == 0 {
			return noMatchesMessage, nil
		}
		return truncateOutput(b.String()), nil
	})
}

func grepFile(fs afero.Fs, path string, re *regexp.Regexp, b *strings.Builder) {
	f, err := fs.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.ContainsRune(line, '\x00') {
			// Binary file; stop scanning it.
			return
		}
		if re.MatchString(line) {
			fmt.Fprintf(b, "%s:%d: %s\n", path, lineNo, line)
		}
	}
}
