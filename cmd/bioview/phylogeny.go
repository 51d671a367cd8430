package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jonathan/bioview/internal/fasta"
	"github.com/jonathan/bioview/internal/phylogeny"
	"github.com/jonathan/bioview/internal/schemas"
)

var phylogenyCmd = &cobra.Command{
	Use:   "phylogeny",
	Short: "Submit and poll phylogeny jobs",
}

var phylogenySubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit sequences and print the first progress envelope",
	RunE:  runPhylogenySubmit,
}

var phylogenyPollCmd = &cobra.Command{
	Use:   "poll <jobId>",
	Short: "Poll a job token once",
	Args:  cobra.ExactArgs(1),
	RunE:  runPhylogenyPoll,
}

var phylogenyRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Submit sequences and poll until the tree is ready",
	Long: `Submits the sequences, then polls every --interval until the job finishes or fails.
The final envelope is printed as JSON. A failed job exits non-zero.`,
	RunE: runPhylogenyRun,
}

var (
	phyloFastaFile string
	phyloMethod    string
	phyloInterval  time.Duration
)

func init() {
	for _, c := range []*cobra.Command{phylogenySubmitCmd, phylogenyRunCmd} {
		c.Flags().StringVarP(&phyloFastaFile, "fasta", "f", "", "Path to a FASTA file, or - for stdin")
		c.Flags().StringVarP(&phyloMethod, "method", "m", string(phylogeny.MethodSimplePhylogeny), "Tree method: simple_phylogeny or clustalo")
		_ = c.MarkFlagRequired("fasta")
	}
	phylogenyRunCmd.Flags().DurationVar(&phyloInterval, "interval", 0, "Polling interval (defaults to poll_interval from config)")

	phylogenyCmd.AddCommand(phylogenySubmitCmd, phylogenyPollCmd, phylogenyRunCmd)
	rootCmd.AddCommand(phylogenyCmd)
}

// readSequences loads FASTA records and keeps each header with its sequence.
func readSequences(path string, stdin io.Reader) ([]string, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read FASTA file: %w", err)
		}
		defer f.Close()
		r = f
	}

	records, err := fasta.Parse(r)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no FASTA records found in %s", path)
	}

	return fasta.Entries(records), nil
}

func submitRequest(cmd *cobra.Command) (phylogeny.SubmitRequest, error) {
	seqs, err := readSequences(phyloFastaFile, cmd.InOrStdin())
	if err != nil {
		return phylogeny.SubmitRequest{}, err
	}
	return phylogeny.SubmitRequest{Sequences: seqs, Method: phyloMethod}, nil
}

func runPhylogenySubmit(cmd *cobra.Command, _ []string) error {
	req, err := submitRequest(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	env, err := a.Phylogeny.Submit(ctx, req)
	if err != nil {
		return fmt.Errorf("submission failed: %w", err)
	}
	if p := printer(cmd, a.Config); p != nil {
		p.PrintEnvelope(env)
	}
	return writeEnvelope(cmd, env)
}

func runPhylogenyPoll(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	env, err := a.Phylogeny.Poll(ctx, args[0])
	if err != nil {
		return err
	}
	if p := printer(cmd, a.Config); p != nil {
		p.PrintEnvelope(env)
	}
	return writeEnvelope(cmd, env)
}

func runPhylogenyRun(cmd *cobra.Command, _ []string) error {
	req, err := submitRequest(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	interval := phyloInterval
	if interval <= 0 {
		interval = a.Config.PollInterval.Std()
	}

	p := printer(cmd, a.Config)
	line := statusLine(cmd)
	env, err := a.Phylogeny.Run(ctx, req, interval, func(env *phylogeny.Envelope) {
		switch {
		case p != nil:
			p.PrintEnvelope(env)
		case line != nil:
			line(env)
		}
	})
	if err != nil {
		if env != nil {
			_ = writeEnvelope(cmd, env)
		}
		return fmt.Errorf("phylogeny run interrupted: %w", err)
	}

	if err := writeEnvelope(cmd, env); err != nil {
		return err
	}
	if env.Status == phylogeny.StatusFailure {
		return fmt.Errorf("phylogeny job failed: %s", env.Message)
	}
	return nil
}

// statusLine prints one line per poll when stderr is an interactive terminal.
func statusLine(cmd *cobra.Command) func(*phylogeny.Envelope) {
	f, ok := cmd.ErrOrStderr().(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return nil
	}
	return func(env *phylogeny.Envelope) {
		stage := string(env.Stage)
		if stage == "" {
			stage = "-"
		}
		_, _ = fmt.Fprintf(f, "%s  %-8s %-9s %s\n", time.Now().Format(time.TimeOnly), env.Status, stage, env.ExternalID)
	}
}

// writeEnvelope prints env after checking it against the progress envelope schema.
func writeEnvelope(cmd *cobra.Command, env *phylogeny.Envelope) error {
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := schemas.Validate(schemas.ProgressEnvelope, data); err != nil {
		var validationErr *schemas.ValidationError
		if errors.As(err, &validationErr) {
			return fmt.Errorf("envelope does not validate against schema: %w", err)
		}
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: Could not validate envelope against schema: %v\n", err)
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", data)
	return err
}
