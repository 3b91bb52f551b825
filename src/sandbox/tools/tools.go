package tools

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/afero"

	"github.com/parleyhq/parley/src/sandbox"
)

// Options configures the default tool set.
type Options struct {
	// Fs is the filesystem the file tools operate on. Defaults to the OS
	// filesystem; tests substitute an in-memory one.
	Fs afero.Fs

	// BashTimeout is the default command timeout, capped at 120s.
	BashTimeout time.Duration

	Logger *slog.Logger
}

// DefaultToolbox builds a toolbox with the full fixed tool set registered.
func DefaultToolbox(opts Options) (*sandbox.Toolbox, error) {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}

	tb := sandbox.NewToolbox(opts.Logger)
	all := []sandbox.Tool{
		BashTool(opts.BashTimeout),
		ReadFileTool(opts.Fs),
		WriteFileTool(opts.Fs),
		ListDirectoryTool(opts.Fs),
		SearchFilesTool(opts.Fs),
		GrepTool(opts.Fs),
	}
	for _, tool := range all {
		if err := tb.Register(tool); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", tool.GetName(), err)
		}
	}
	return tb, nil
}
