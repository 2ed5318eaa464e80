// Package synonym loads variant synonym tables.
//
// A synonym file has one line per preferred variant id:
//
//	canonicalId=syn1,syn2,...
//
// Lines without exactly one '=' are ignored.
package synonym

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/inodb/plinkeig/internal/fileio"
)

// Table maps a canonical variant id to its known alternate ids.
type Table map[string][]string

// Read parses synonym lines from r.
func Read(r io.Reader) (Table, error) {
	t := make(Table)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		parts := strings.Split(scanner.Text(), "=")
		if len(parts) != 2 {
			continue
		}
		t[parts[0]] = strings.Split(strings.TrimRight(parts[1], "\r"), ",")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading synonyms: %w", err)
	}
	return t, nil
}

// Load reads a synonym file.
func Load(path string) (Table, error) {
	rc, err := fileio.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open synonym file: %w", err)
	}
	defer rc.Close()
	return Read(rc)
}

// Resolver answers synonym lookups in both directions.
type Resolver struct {
	table     Table
	canonical map[string]string
}

// NewResolver indexes t for reverse lookups. When an alternate id is listed
// under several canonical ids, the lexically smallest canonical id wins.
func NewResolver(t Table) *Resolver {
	r := &Resolver{table: t, canonical: make(map[string]string)}
	for id, syns := range t {
		for _, s := range syns {
			if s == "" {
				continue
			}
			if prev, ok := r.canonical[s]; !ok || id < prev {
				r.canonical[s] = id
			}
		}
	}
	return r
}

// Canonical returns the preferred id for variant, or variant itself.
func (r *Resolver) Canonical(variant string) string {
	if _, ok := r.table[variant]; ok {
		return variant
	}
	if c, ok := r.canonical[variant]; ok {
		return c
	}
	return variant
}

// Candidates lists the ids under which data for variant may be recorded:
// the id itself, its canonical id, then every synonym of the canonical id.
// Each id appears once.
func (r *Resolver) Candidates(variant string) []string {
	out := []string{variant}
	seen := map[string]struct{}{variant: {}}
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	c := r.Canonical(variant)
	add(c)
	for _, s := range r.table[c] {
		add(s)
	}
	return out
}
