package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/parleyhq/parley/src/chat"
	"github.com/parleyhq/parley/src/engine"
)

var (
	toolStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	headerStyle = lipgloss.NewStyle().Bold(true)
)

// consoleProcessor renders loop events to the terminal as they arrive: text
// deltas print live, tool activity prints as status lines.
type consoleProcessor struct {
	out            io.Writer
	showToolInput  bool
	showThinking   bool
	quiet          bool
	maxResultChars int

	// Type of the block currently streaming, so thinking fragments can be
	// suppressed without the delta events carrying a type themselves.
	blockType string

	// Tracks whether the last thing printed was streamed text, so status
	// lines start on a fresh line.
	midLine bool
}

func newConsoleProcessor(showToolInput, showThinking, quiet bool) *consoleProcessor {
	return &consoleProcessor{
		out:            os.Stdout,
		showToolInput:  showToolInput,
		showThinking:   showThinking,
		quiet:          quiet,
		maxResultChars: 200,
	}
}

func (p *consoleProcessor) Process(event engine.Event) error {
	switch e := event.(type) {
	case *engine.BlockStartEvent:
		p.blockType = e.Block.Type
		if e.Block.Type == chat.BlockThinking && p.showThinking {
			p.breakLine()
			fmt.Fprintln(p.out, mutedStyle.Render("[thinking]"))
		}

	case *engine.BlockDeltaEvent:
		if p.blockType == chat.BlockThinking && !p.showThinking {
			return nil
		}
		fmt.Fprint(p.out, e.Fragment)
		p.midLine = true

	case *engine.BlockStopEvent:
		if e.Block.Type == chat.BlockText || e.Block.Type == chat.BlockThinking {
			p.breakLine()
		}
		p.blockType = ""

	case *engine.ToolExecutingEvent:
		if p.quiet {
			return nil
		}
		p.breakLine()
		fmt.Fprintln(p.out, toolStyle.Render(fmt.Sprintf("* running %s", e.Name)))
		if p.showToolInput {
			if raw, err := json.MarshalIndent(e.Input, "  ", "  "); err == nil {
				fmt.Fprintln(p.out, mutedStyle.Render("  "+string(raw)))
			}
		}

	case *engine.ToolResultEvent:
		if p.quiet {
			return nil
		}
		status := toolStyle.Render(fmt.Sprintf("* %s finished (%v)", e.Name, e.Duration.Round(10*time.Millisecond)))
		if e.Result.IsError {
			status = errorStyle.Render(fmt.Sprintf("* %s failed: %s", e.Name, preview(e.Result.Output, p.maxResultChars)))
		}
		fmt.Fprintln(p.out, status)

	case *engine.StreamDoneEvent:
		if e.Reason == engine.DoneMaxTurns {
			p.breakLine()
			fmt.Fprintln(p.out, errorStyle.Render(fmt.Sprintf("! turn ceiling reached after %d turns", e.TotalTurns)))
		}

	case *engine.StreamErrorEvent:
		p.breakLine()
		if e.Aborted {
			fmt.Fprintln(p.out, mutedStyle.Render("aborted"))
		} else {
			fmt.Fprintln(p.out, errorStyle.Render(fmt.Sprintf("! stream error: %v", e.Error)))
		}
	}
	return nil
}

func (p *consoleProcessor) Close() error {
	p.breakLine()
	return nil
}

func (p *consoleProcessor) breakLine() {
	if p.midLine {
		fmt.Fprintln(p.out)
		p.midLine = false
	}
}

// preview flattens output to a single line of at most max characters.
func preview(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
