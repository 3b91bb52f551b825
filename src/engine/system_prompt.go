package engine

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/host"
)

const basePrompt = `You are a helpful assistant with access to tools for working with the local filesystem and shell. Use the tools when a request needs them; answer directly when it does not. Keep responses concise.`

// DefaultSystemPrompt builds the system prompt sent with every turn,
// including a snapshot of the host environment.
func DefaultSystemPrompt() string {
	return basePrompt + "\n\n" + environmentInfo()
}

// environmentInfo describes the machine the tools will run on.
func environmentInfo() string {
	cwd, _ := os.Getwd()
	today := time.Now().Format("2006-01-02")

	return fmt.Sprintf(`Here is useful information about the environment you are running in:
<env>
Working directory: %s
Platform: %s
OS Version: %s
Today's date: %s
</env>`, cwd, runtime.GOOS, osVersion(), today)
}

// osVersion returns detailed OS version information.
func osVersion() string {
	info, err := host.Info()
	if err == nil {
		if info.PlatformVersion != "" {
			return fmt.Sprintf("%s %s", info.Platform, info.PlatformVersion)
		}
		return info.Platform
	}
	return runtime.GOOS
}
