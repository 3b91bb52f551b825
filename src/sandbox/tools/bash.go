package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/parleyhq/parley/src/sandbox"
)

// BashName is the bash tool's name as exposed to the model.
const BashName = "bash"

const bashDescription = `Run a shell command and return its combined output.

Usage notes:
- stdout is returned first, then stderr.
- Output longer than 30000 characters is truncated.
- An optional timeout in seconds may be given; it is capped at 120s.`

// MaxBashTimeout is the hard ceiling on a single command's runtime.
const MaxBashTimeout = 120 * time.Second

// BashInput holds the parameters for the bash tool.
type BashInput struct {
	Command string `json:"command" required:"true" description:"The shell command to execute"`
	Timeout int    `json:"timeout,omitempty" description:"Timeout in seconds (capped at 120)"`
}

// BashTool runs commands through the shell with a bounded timeout and a
// bounded output buffer.
func BashTool(defaultTimeout time.Duration) sandbox.Tool {
	if defaultTimeout <= 0 || defaultTimeout > MaxBashTimeout {
		defaultTimeout = MaxBashTimeout
	}
	return sandbox.MustGenericTool(BashName, bashDescription, func(ctx context.Context, input BashInput) (string, error) {
		if input.Command == "" {
			return "", fmt.Errorf("command is required")
		}

		timeout := defaultTimeout
		if input.Timeout > 0 {
			timeout = time.Duration(input.Timeout) * time.Second
			if timeout > MaxBashTimeout {
				timeout = MaxBashTimeout
			}
		}

		// The command runs against its own timeout, not the loop context:
		// aborting a stream never kills a command already in flight.
		runCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", input.Command)

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		runErr := cmd.Run()
		output := truncateOutput(stdout.String() + stderr.String())

		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("command timed out after %s\n%s", timeout, output)
		}
		if runErr != nil {
			return "", fmt.Errorf("command failed: %v\n%s", runErr, output)
		}

		return orPlaceholder(output), nil
	})
}
