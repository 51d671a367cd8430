// Package fasta builds and parses the minimal FASTA blocks exchanged with the EBI tools.
package fasta

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode"
)

// Record represents a single FASTA record (header and sequence).
type Record struct {
	Header   string
	Sequence string
}

// Clean strips a leading header line, whitespace and digits from a raw sequence
// and upper-cases the residues. Gap characters are kept.
func Clean(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, ">") {
		if idx := strings.IndexByte(raw, '\n'); idx >= 0 {
			raw = raw[idx+1:]
		} else {
			raw = ""
		}
	}

	var sb strings.Builder
	sb.Grow(len(raw))
	for _, r := range raw {
		if unicode.IsSpace(r) || unicode.IsDigit(r) {
			continue
		}
		sb.WriteRune(unicode.ToUpper(r))
	}
	return sb.String()
}

// Build joins sequences into a FASTA block with generated headers seq1, seq2, ...
func Build(sequences []string) string {
	var sb strings.Builder
	for i, seq := range sequences {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, ">seq%d\n%s", i+1, Clean(seq))
	}
	return sb.String()
}

// Parse reads FASTA records from r. Lines beginning with '>' start a record;
// sequence lines are concatenated. Text before the first header is ignored.
func Parse(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var records []Record
	var current *Record
	var seq strings.Builder
	flush := func() {
		if current != nil {
			current.Sequence = seq.String()
			records = append(records, *current)
		}
		seq.Reset()
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ">") {
			flush()
			current = &Record{Header: strings.TrimSpace(line[1:])}
			continue
		}
		if current != nil {
			seq.WriteString(line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read FASTA: %w", err)
	}
	flush()
	return records, nil
}

// Entries renders each record as its own ">header\nsequence" block.
func Entries(records []Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, ">"+r.Header+"\n"+r.Sequence)
	}
	return out
}
