// Package tools implements the fixed tool set exposed to the model: bash,
// read_file, write_file, list_directory, search_files and grep.
package tools

import "strings"

// MaxOutputChars bounds every tool's output so a single result cannot blow
// up the transcript or the next request.
const MaxOutputChars = 30000

const truncationMarker = "\n... [output truncated]"

const noOutputPlaceholder = "(no output)"

// truncateOutput caps s at MaxOutputChars and appends the marker when
// anything was cut.
func truncateOutput(s string) string {
	if len(s) <= MaxOutputChars {
		return s
	}
	return s[:MaxOutputChars] + truncationMarker
}

// orPlaceholder substitutes the placeholder for empty output so the model
// always sees that the tool ran.
func orPlaceholder(s string) string {
	if strings.TrimSpace(s) == "" {
		return noOutputPlaceholder
	}
	return s
}
