// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/bioview/internal/db"
	"github.com/jonathan/bioview/internal/phylogeny"
	"github.com/jonathan/bioview/internal/structure"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxResultLines bounds how much of a tree is echoed
	maxResultLines = 8
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintEnvelope outputs the state of a phylogeny job.
func (p *Printer) PrintEnvelope(env *phylogeny.Envelope) {
	if env == nil {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Status:    %s\n", env.Status)
	fmt.Fprintf(&sb, "Method:    %s\n", env.Service)
	if env.Stage != "" {
		fmt.Fprintf(&sb, "Stage:     %s\n", env.Stage)
	}
	fmt.Fprintf(&sb, "Remote:    %s %s\n", env.ExternalService, env.ExternalID)
	if env.ExternalURL != "" {
		fmt.Fprintf(&sb, "Link:      %s\n", env.ExternalURL)
	}
	fmt.Fprintf(&sb, "Alignment: %s\n", env.AlignmentJobID)
	if env.TreeJobID != "" {
		fmt.Fprintf(&sb, "Tree job:  %s\n", env.TreeJobID)
	}
	fmt.Fprintf(&sb, "Next:      %s\n", phylogeny.NextState(env))
	if env.Message != "" {
		fmt.Fprintf(&sb, "\n%s\n", env.Message)
	}
	if env.Result != "" {
		sb.WriteString("\nResult:\n")
		lines := wrap(env.Result, boxWidth-6)
		count := min(len(lines), maxResultLines)
		for _, line := range lines[:count] {
			fmt.Fprintf(&sb, "  %s\n", line)
		}
		if len(lines) > maxResultLines {
			fmt.Fprintf(&sb, "  ... and %d more lines\n", len(lines)-maxResultLines)
		}
	}

	p.printBox("PHYLOGENY JOB", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintMetadata outputs a structure summary.
func (p *Printer) PrintMetadata(md *structure.Metadata) {
	if md == nil {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "ID:       %s (%s)\n", md.ID, md.Source)
	fmt.Fprintf(&sb, "Title:    %s\n", md.Title)
	if md.Method != "" {
		fmt.Fprintf(&sb, "Method:   %s\n", md.Method)
	}
	if md.Resolution > 0 {
		fmt.Fprintf(&sb, "Resolution: %.2f Å\n", md.Resolution)
	}
	if md.Organism != "" {
		fmt.Fprintf(&sb, "Organism: %s\n", md.Organism)
	}
	if md.MeanPLDDT > 0 {
		fmt.Fprintf(&sb, "pLDDT:    %.1f (model v%d)\n", md.MeanPLDDT, md.ModelVersion)
	}
	if md.ReleaseDate != "" {
		fmt.Fprintf(&sb, "Released: %s\n", md.ReleaseDate)
	}
	fmt.Fprintf(&sb, "Coordinates: %s\n", md.CoordinatesURL)

	p.printBox("STRUCTURE", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintBatch outputs one line per batch lookup.
func (p *Printer) PrintBatch(results []structure.BatchResult) {
	if len(results) == 0 {
		return
	}

	var sb strings.Builder
	failed := 0
	for _, r := range results {
		if r.Metadata != nil {
			fmt.Fprintf(&sb, "  ✓ %s: %s\n", r.Input, r.Metadata.Title)
			continue
		}
		failed++
		fmt.Fprintf(&sb, "  ✗ %s: %s\n", r.Input, r.Error)
	}
	fmt.Fprintf(&sb, "\n%d found, %d failed", len(results)-failed, failed)

	p.printBox("STRUCTURES", sb.String())
}

// PrintRemoteJobs outputs recorded EBI submissions, newest first.
func (p *Printer) PrintRemoteJobs(title string, jobs []db.RemoteJob) {
	if len(jobs) == 0 {
		p.printBox(title, "No jobs recorded")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Total: %d\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(&sb, "%s  %s\n", job.SubmittedAt.Format("2006-01-02 15:04"), job.Tool)
		fmt.Fprintf(&sb, "    %s\n", job.ExternalID)
		if job.ParentID != nil {
			fmt.Fprintf(&sb, "    from %s\n", *job.ParentID)
		}
	}

	p.printBox(title, strings.TrimSuffix(sb.String(), "\n"))
}

// wrap splits s into lines of at most width bytes, keeping existing line breaks.
func wrap(s string, width int) []string {
	var lines []string
	for _, line := range strings.Split(strings.TrimRight(s, "\n"), "\n") {
		for len(line) > width {
			lines = append(lines, line[:width])
			line = line[width:]
		}
		lines = append(lines, line)
	}
	return lines
}
