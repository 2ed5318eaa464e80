package plink

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// LineReader yields lines without their terminators together with their
// zero-based positions. Lines have no length limit; PED records can be
// several megabytes long.
type LineReader struct {
	reader *bufio.Reader
	line   int
}

// NewLineReader creates a LineReader over r.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{reader: bufio.NewReaderSize(r, 1<<20), line: -1}
}

// Next returns the next line and its position. ok is false once the input
// is exhausted.
func (lr *LineReader) Next() (line string, pos int, ok bool, err error) {
	line, err = lr.reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", lr.line, false, fmt.Errorf("read line %d: %w", lr.line+1, err)
	}
	if err == io.EOF && line == "" {
		return "", lr.line, false, nil
	}
	lr.line++
	return strings.TrimRight(line, "\r\n"), lr.line, true, nil
}

// NormalizeLine turns tabs into single spaces, as both PLINK text formats
// accept either delimiter.
func NormalizeLine(line string) string {
	return strings.ReplaceAll(line, "\t", " ")
}

// IsBlank reports whether line holds only whitespace.
func IsBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}

// IsComment reports whether a PED line is a comment.
func IsComment(line string) bool {
	return strings.HasPrefix(line, "#")
}

// CountLines returns the number of lines in r. A final line without a
// terminator is counted.
func CountLines(r io.Reader) (int, error) {
	br := bufio.NewReaderSize(r, 1<<20)
	count := 0
	pending := false
	for {
		chunk, err := br.ReadSlice('\n')
		if len(chunk) > 0 {
			pending = true
		}
		if err == nil {
			count++
			pending = false
			continue
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err == io.EOF {
			if pending {
				count++
			}
			return count, nil
		}
		return count, fmt.Errorf("count lines: %w", err)
	}
}
