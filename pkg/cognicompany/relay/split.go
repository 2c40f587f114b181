package relay

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultBudget is the chat platform's message size limit.
const DefaultBudget = 2000

// SplitMessage splits text into chunks of at most budget characters. A
// chunk ends at the last newline that fits, else at the last whitespace,
// else at the budget. Whitespace around a break is dropped. Empty text
// yields no chunks.
func SplitMessage(text string, budget int) []string {
	if text == "" {
		return nil
	}
	if budget <= 0 {
		budget = DefaultBudget
	}

	var chunks []string
	rest := text
	for rest != "" {
		if utf8.RuneCountInString(rest) <= budget {
			chunks = append(chunks, rest)
			break
		}

		window := rest[:byteOffset(rest, budget)]
		cut := strings.LastIndexByte(window, '\n')
		if cut <= 0 {
			cut = strings.LastIndexFunc(window, unicode.IsSpace)
		}
		if cut <= 0 {
			cut = len(window)
		}

		if chunk := strings.TrimRightFunc(rest[:cut], unicode.IsSpace); chunk != "" {
			chunks = append(chunks, chunk)
		}
		rest = strings.TrimLeftFunc(rest[cut:], unicode.IsSpace)
	}
	return chunks
}

// byteOffset returns the byte index just past the first n runes of s.
func byteOffset(s string, n int) int {
	i := 0
	for pos := range s {
		if i == n {
			return pos
		}
		i++
	}
	return len(s)
}

var sandboxFile = regexp.MustCompile(`(?i)sandbox:([^\s()\[\]<>"']+\.(?:jpg|jpeg|png|gif|mp3|wav|mp4|avi|mov))\b`)

// ExtractLocalFiles returns the local paths of media files referenced as
// sandbox:<path> in text, in order of first appearance.
func ExtractLocalFiles(text string) []string {
	var files []string
	seen := make(map[string]bool)
	for _, m := range sandboxFile.FindAllStringSubmatch(text, -1) {
		// Rooting before Clean keeps the path inside the working directory.
		p := "./" + strings.TrimPrefix(filepath.Clean("/"+m[1]), "/")
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}
	return files
}
