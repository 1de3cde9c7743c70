package at

import (
	"bufio"
	"bytes"
	"strings"
)

// Splitter is used for tokenizing AT command modem responses. It uses
// the signature of bufio.SplitFunc so it can be directly used with bufio.Scanner.
//
// It splits the input on CRLF, bare LF or bare CR line endings and also
// recognizes the data input prompt ("> ").
//
// Command echoes are returned as ordinary tokens; callers that only care
// about information responses filter them out by prefix.
//
// The atEOF parameter indicates whether any more data will be available.
// When true, any remaining data is returned as the final token.
func Splitter(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	// 1. Match data input prompt
	if bytes.HasPrefix(data, []byte(Prompt)) {
		return len(Prompt), data[0:len(Prompt)], nil
	}

	// 2. Match any line ending, folding CRLF into one terminator
	if i := bytes.IndexAny(data, CRLF); i >= 0 {
		advance = i + 1
		if data[i] == '\r' {
			if advance == len(data) && !atEOF {
				// Need the next byte to know whether this is a CRLF pair
				return 0, nil, nil
			}
			if advance < len(data) && data[advance] == '\n' {
				advance++
			}
		}
		return advance, data[0:i], nil
	}

	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = Splitter

// Classify identifies the nature of the modem output
func Classify(line string) ResponseType {
	if line == Prompt {
		return TypePrompt
	}

	// Direct matches for final results
	switch line {
	case OK, ERROR, NoCarrier, NoDialtone, Busy, NoAnswer:
		return TypeFinal
	}

	// Prefix matches
	switch {
	case strings.HasPrefix(line, CmeError), strings.HasPrefix(line, CmsError):
		return TypeFinal
	case strings.HasPrefix(line, UrcNewMsg), strings.HasPrefix(line, UrcSocketRing), line == UrcCall:
		return TypeURC
	default:
		return TypeData
	}
}

// Lines tokenizes a complete response and returns its non-empty lines,
// trimmed of surrounding whitespace.
func Lines(response string) []string {
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(response))
	scanner.Split(Splitter)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// HasOK reports whether the response carries the OK final result code on a
// line of its own.
func HasOK(response string) bool {
	for _, line := range Lines(response) {
		if line == OK {
			return true
		}
	}
	return false
}

// FinalResult returns the last final result code line of the response,
// such as OK, ERROR or +CME ERROR: <err>.
func FinalResult(response string) (string, bool) {
	lines := Lines(response)
	for i := len(lines) - 1; i >= 0; i-- {
		if Classify(lines[i]) == TypeFinal {
			return lines[i], true
		}
	}
	return "", false
}

// Filter returns the response lines starting with any of the given prefixes,
// in the order they were received.
func Filter(response string, prefixes ...string) []string {
	var matched []string
	for _, line := range Lines(response) {
		for _, prefix := range prefixes {
			if strings.HasPrefix(line, prefix) {
				matched = append(matched, line)
				break
			}
		}
	}
	return matched
}
