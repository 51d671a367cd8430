package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// execute runs the root command in-process with every flag back at its default.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// isolateEnv clears the settings a developer .env could leak into a test.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DATABASE_URL", "API_JWT_SECRET", "API_JWT_EXPIRATION_HOURS", "VERBOSE",
		"CLUSTALO_BASE_URL", "SIMPLE_PHYLOGENY_BASE_URL", "RCSB_BASE_URL",
		"ALPHAFOLD_BASE_URL", "RCSB_DOWNLOAD_URL", "MAX_SEQUENCES", "MAX_SEQUENCE_LENGTH",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("FETCH_RETRIES", "0")
}

// newFakeEBI serves both EBI tools; every job is finished as soon as it exists.
func newFakeEBI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/clustalo/run"):
			_, _ = w.Write([]byte("clustalo-R1"))
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/simple_phylogeny/run"):
			_, _ = w.Write([]byte("simple_phylogeny-R2"))
		case strings.Contains(r.URL.Path, "/status/"):
			_, _ = w.Write([]byte("FINISHED"))
		case strings.HasSuffix(r.URL.Path, "/result/clustalo-R1/fa"):
			_, _ = w.Write([]byte(">a\nACGT\n>b\nACGA\n"))
		case strings.HasSuffix(r.URL.Path, "/result/clustalo-R1/phylotree"):
			_, _ = w.Write([]byte("(a:0.1,b:0.1);"))
		case strings.HasSuffix(r.URL.Path, "/result/simple_phylogeny-R2/tree"):
			_, _ = w.Write([]byte("(a:0.15,b:0.15);"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	t.Setenv("CLUSTALO_BASE_URL", srv.URL+"/clustalo")
	t.Setenv("SIMPLE_PHYLOGENY_BASE_URL", srv.URL+"/simple_phylogeny")
	return srv
}

func writeFasta(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.fasta")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write FASTA: %v", err)
	}
	return path
}
