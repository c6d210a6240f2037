package flow

import (
	"fmt"
	"unicode/utf8"
)

// truncateHeadTail keeps the first and last halves of output when it exceeds
// maxChars characters, replacing the middle with a notice.
func truncateHeadTail(output string, maxChars int) (string, bool) {
	if maxChars <= 0 || utf8.RuneCountInString(output) <= maxChars {
		return output, false
	}

	runes := []rune(output)
	half := maxChars / 2
	removed := len(runes) - 2*half

	return string(runes[:half]) +
		fmt.Sprintf("\n\n[WARNING: Tool output was truncated. %d characters were removed from the middle. "+
			"If you need to see specific parts, re-run the tool with more targeted parameters.]\n\n", removed) +
		string(runes[len(runes)-half:]), true
}
