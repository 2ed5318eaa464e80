// Package gtcode loads per-variant genotype code tables.
//
// A code file has one tab-separated line per variant id (or synonym):
//
//	variantId<TAB>rawGenotype:code<TAB>rawGenotype:code...
//
// Lines with fewer than two fields and sub-tokens without a ':' or with a
// non-integer code are ignored. Raw genotypes are stored as two-character
// allele pairs, so "A G" and "AG" name the same genotype.
package gtcode

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/inodb/plinkeig/internal/fileio"
	"github.com/inodb/plinkeig/internal/plink"
)

// Codes maps a two-character allele pair to its integer code.
type Codes map[string]int

// Table maps a variant id to its genotype codes. A variant missing from the
// table is unsupported.
type Table map[string]Codes

// Read parses code lines from r.
func Read(r io.Reader) (Table, error) {
	t := make(Table)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		fields := strings.Split(strings.TrimRight(scanner.Text(), "\r"), "\t")
		if len(fields) < 2 {
			continue
		}

		codes := make(Codes, len(fields)-1)
		for _, f := range fields[1:] {
			raw, value, ok := strings.Cut(f, ":")
			if !ok {
				continue
			}
			call, ok := plink.ParseCall(raw)
			if !ok {
				continue
			}
			code, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				continue
			}
			codes[call.Key()] = code
		}
		t[fields[0]] = codes
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading genotype codes: %w", err)
	}
	return t, nil
}

// Load reads a genotype code file.
func Load(path string) (Table, error) {
	rc, err := fileio.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open genotype code file: %w", err)
	}
	defer rc.Close()
	return Read(rc)
}

// Lookup returns the code of call; ok is false when the call is unmapped.
func (c Codes) Lookup(call plink.Call) (code int, ok bool) {
	code, ok = c[call.Key()]
	return code, ok
}

// Inverse maps codes back to genotype calls for every variant. When several
// allele pairs share a code, the lexically smallest pair is kept.
func (t Table) Inverse() map[string]map[int]plink.Call {
	inv := make(map[string]map[int]plink.Call, len(t))
	for variant, codes := range t {
		keys := make([]string, 0, len(codes))
		for k := range codes {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		m := make(map[int]plink.Call, len(codes))
		for _, k := range keys {
			code := codes[k]
			if _, ok := m[code]; ok {
				continue
			}
			call, _ := plink.ParseCall(k)
			m[code] = call
		}
		inv[variant] = m
	}
	return inv
}
