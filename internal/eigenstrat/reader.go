// Package eigenstrat reads Eigenstrat reference .snp and .ind files.
package eigenstrat

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/inodb/plinkeig/internal/fileio"
)

// IND file columns
const (
	ColIndividual int = iota
	ColSex
	ColPopulation
)

// ParseError represents a malformed reference file line.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("eigenstrat parse error at line %d: %s", e.Line, e.Message)
}

// ReadSNP returns the variant ids of a .snp file in file order. Each id is
// the text before the first tab of its line. Blank lines are skipped.
func ReadSNP(r io.Reader) ([]string, error) {
	var variants []string
	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		id, _, ok := strings.Cut(line, "\t")
		if !ok {
			return nil, &ParseError{Line: lineNumber, Message: "expected tab-separated columns"}
		}
		variants = append(variants, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading snp file: %w", err)
	}
	return variants, nil
}

// Individuals maps individual ids to populations and keeps file order.
type Individuals struct {
	Order      []string
	Population map[string]string
}

// Len returns the number of distinct individuals.
func (ind *Individuals) Len() int {
	return len(ind.Order)
}

// Has reports whether id is listed.
func (ind *Individuals) Has(id string) bool {
	_, ok := ind.Population[id]
	return ok
}

// ReadIND parses a tab-separated .ind file: individual, sex, population.
// A repeated individual keeps its first position and its last population.
func ReadIND(r io.Reader) (*Individuals, error) {
	ind := &Individuals{Population: make(map[string]string)}
	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) <= ColPopulation {
			return nil, &ParseError{
				Line:    lineNumber,
				Message: fmt.Sprintf("expected at least 3 columns, found %d", len(fields)),
			}
		}
		id := fields[ColIndividual]
		if !ind.Has(id) {
			ind.Order = append(ind.Order, id)
		}
		ind.Population[id] = fields[ColPopulation]
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ind file: %w", err)
	}
	return ind, nil
}

// LoadSNP reads a .snp file from disk.
func LoadSNP(path string) ([]string, error) {
	rc, err := fileio.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snp file: %w", err)
	}
	defer rc.Close()
	return ReadSNP(rc)
}

// LoadIND reads a .ind file from disk.
func LoadIND(path string) (*Individuals, error) {
	rc, err := fileio.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ind file: %w", err)
	}
	defer rc.Close()
	return ReadIND(rc)
}
