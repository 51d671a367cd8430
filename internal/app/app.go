// Package app assembles the phylogeny orchestrator and structure loader from
// configuration. The CLI and the HTTP server share it.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/jonathan/bioview/internal/cache"
	"github.com/jonathan/bioview/internal/config"
	"github.com/jonathan/bioview/internal/db"
	"github.com/jonathan/bioview/internal/ebi"
	"github.com/jonathan/bioview/internal/fetch"
	"github.com/jonathan/bioview/internal/phylogeny"
	"github.com/jonathan/bioview/internal/structure"
)

// App holds the wired services.
type App struct {
	Config     config.Config
	Phylogeny  *phylogeny.Orchestrator
	Structures *structure.Loader
	DB         *db.DB // nil without DATABASE_URL
}

// Build creates the services described by cfg. With a database URL the metadata
// cache and the remote job log live in Postgres; otherwise the cache is in memory
// and jobs are not recorded.
func Build(ctx context.Context, cfg config.Config, client *http.Client) (*App, error) {
	a := &App{Config: cfg}

	var store cache.Store
	var recorder phylogeny.JobRecorder
	if cfg.DatabaseURL != "" {
		database, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(ctx); err != nil {
			database.Close()
			return nil, err
		}
		a.DB = database
		store = database.NewMetadataCache(cfg.MetadataCacheTTL.Std())
		recorder = database
		log.Printf("[app] using postgres metadata cache (ttl %s)", cfg.MetadataCacheTTL)
	} else {
		store = cache.NewMemory(cfg.MetadataCacheTTL.Std())
	}

	a.Phylogeny = phylogeny.New(
		ebi.NewClustalOmega(ToolConfig(cfg, cfg.ClustalOmegaURL, client)),
		ebi.NewSimplePhylogeny(ToolConfig(cfg, cfg.SimplePhylogenyURL, client)),
		phylogeny.Options{
			MaxSequences:      cfg.MaxSequences,
			MaxSequenceLength: cfg.MaxSequenceLength,
			Recorder:          recorder,
		},
	)

	a.Structures = structure.NewLoader(store, structure.Config{
		RCSBBaseURL:      cfg.RCSBURL,
		AlphaFoldBaseURL: cfg.AlphaFoldURL,
		DownloadBaseURL:  cfg.DownloadURL,
		HTTPClient:       client,
		Retry: fetch.RetryOptions{
			Timeout:    cfg.StatusTimeout.Std(),
			Retries:    cfg.Retries(),
			RetryDelay: cfg.FetchRetryDelay.Std(),
		},
		Concurrency: cfg.StructureConcurrency,
	})

	return a, nil
}

// ToolConfig maps the shared settings onto one EBI tool.
func ToolConfig(cfg config.Config, baseURL string, client *http.Client) ebi.Config {
	return ebi.Config{
		BaseURL:       baseURL,
		Email:         cfg.EBIEmail,
		HTTPClient:    client,
		SubmitTimeout: cfg.SubmitTimeout.Std(),
		StatusTimeout: cfg.StatusTimeout.Std(),
		ResultTimeout: cfg.ResultTimeout.Std(),
		Retries:       cfg.Retries(),
		RetryDelay:    cfg.FetchRetryDelay.Std(),
	}
}

// Close releases the database pool, if any.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}

// Ping checks the backing database. It succeeds when there is none.
func (a *App) Ping(ctx context.Context) error {
	if a.DB == nil {
		return nil
	}
	if err := a.DB.Ping(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	return nil
}
