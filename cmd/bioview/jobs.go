package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/bioview/internal/app"
	"github.com/jonathan/bioview/internal/db"
	"github.com/jonathan/bioview/internal/ebi"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect the remote job log (requires DATABASE_URL)",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded remote job submissions",
	RunE:  runJobsList,
}

var jobsOrphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "List alignment jobs that never got a tree job",
	Long: `Lists Clustal Omega submissions that no Simple Phylogeny job references. For the
simple_phylogeny method these are pipelines whose callers stopped polling before the
alignment finished. Direct clustalo submissions are listed too.`,
	RunE: runJobsOrphans,
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge-cache",
	Short: "Delete expired structure metadata from the database cache",
	RunE:  runCachePurge,
}

var (
	jobsTool   string
	jobsParent string
	jobsLimit  int
)

func init() {
	jobsListCmd.Flags().StringVar(&jobsTool, "tool", "", "Only jobs of this tool (clustalo or simple_phylogeny)")
	jobsListCmd.Flags().StringVar(&jobsParent, "parent", "", "Only jobs submitted from this alignment job id")
	jobsListCmd.Flags().IntVar(&jobsLimit, "limit", 50, "Maximum number of jobs to list")
	jobsOrphansCmd.Flags().IntVar(&jobsLimit, "limit", 50, "Maximum number of jobs to list")

	jobsCmd.AddCommand(jobsListCmd, jobsOrphansCmd, cachePurgeCmd)
	rootCmd.AddCommand(jobsCmd)
}

// openDatabase builds the app and insists that it is backed by Postgres.
func openDatabase(ctx context.Context) (*app.App, error) {
	a, err := buildApp(ctx)
	if err != nil {
		return nil, err
	}
	if a.DB == nil {
		a.Close()
		return nil, fmt.Errorf("DATABASE_URL is required for this command")
	}
	return a, nil
}

func runJobsList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	jobs, err := a.DB.ListRemoteJobs(ctx, db.RemoteJobFilters{Tool: jobsTool, ParentID: jobsParent, Limit: jobsLimit})
	if err != nil {
		return err
	}
	if p := printer(cmd, a.Config); p != nil {
		p.PrintRemoteJobs("REMOTE JOBS", jobs)
	}
	return writeJSON(cmd.OutOrStdout(), jobs)
}

func runJobsOrphans(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	jobs, err := a.DB.ListOrphanedAlignments(ctx, ebi.ToolClustalOmega, jobsLimit)
	if err != nil {
		return err
	}
	if p := printer(cmd, a.Config); p != nil {
		p.PrintRemoteJobs("ORPHANED ALIGNMENTS", jobs)
	}
	return writeJSON(cmd.OutOrStdout(), jobs)
}

func runCachePurge(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	metadata := a.DB.NewMetadataCache(a.Config.MetadataCacheTTL.Std())
	removed, err := metadata.Purge(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Purged %d expired metadata entries (entries live %s)\n", removed, metadata.TTL())
	return nil
}
