package plink

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// ParseError represents a problem found on one line of an input file.
// Line is the zero-based position of the line in the file.
type ParseError struct {
	File    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("%s at position %d", e.Message, e.Line)
	}
	return fmt.Sprintf("%s in %s at position %d", e.Message, e.File, e.Line)
}

// WrongGenotypeCountError is raised when a PED record does not carry one
// genotype call per variant defined in the MAP file. It aborts the scan.
type WrongGenotypeCountError struct {
	Line     int
	Variants int
	Calls    int
}

func (e *WrongGenotypeCountError) Error() string {
	if e.Calls > e.Variants {
		return fmt.Sprintf("PED file contains more genotypes than the %d variants defined in MAP file at position %d", e.Variants, e.Line)
	}
	return fmt.Sprintf("PED file contains fewer genotypes (%d) than the %d variants defined in MAP file at position %d", e.Calls, e.Variants, e.Line)
}

// FormatError aggregates every problem found while reading a file.
type FormatError struct {
	Errs []error
}

func (e *FormatError) Error() string {
	var sb strings.Builder
	sb.WriteString("uploaded data is invalid:")
	for _, err := range e.Errs {
		sb.WriteString("\n- ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Unwrap exposes the individual problems to errors.Is and errors.As.
func (e *FormatError) Unwrap() []error {
	return e.Errs
}

// ErrorLog accumulates per-line problems until the end of a scan.
type ErrorLog struct {
	err error
}

// Add records a problem. Nil errors are ignored.
func (l *ErrorLog) Add(err error) {
	l.err = multierr.Append(l.err, err)
}

// Err returns nil when nothing was recorded, otherwise a *FormatError.
func (l *ErrorLog) Err() error {
	if l.err == nil {
		return nil
	}
	return &FormatError{Errs: multierr.Errors(l.err)}
}
