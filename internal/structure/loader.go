// Package structure resolves structure identifiers to metadata from RCSB PDB and the
// AlphaFold database. Lookups read through an injected cache.Store.
package structure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/jonathan/bioview/internal/cache"
	"github.com/jonathan/bioview/internal/fetch"
)

// Default upstream endpoints.
const (
	DefaultRCSBURL      = "https://data.rcsb.org/rest/v1/core/entry"
	DefaultAlphaFoldURL = "https://alphafold.ebi.ac.uk/api/prediction"
	DefaultDownloadURL  = "https://files.rcsb.org/download"
)

// Upstream sources.
const (
	SourceRCSB      = "rcsb"
	SourceAlphaFold = "alphafold"
)

// DefaultConcurrency bounds parallel upstream lookups in MetadataBatch.
const DefaultConcurrency = 4

// sharedLookupTimeout bounds a deduplicated upstream lookup, retries included.
const sharedLookupTimeout = 2 * time.Minute

// Metadata describes one structure.
type Metadata struct {
	ID               string    `json:"id"`
	Source           string    `json:"source"`
	Title            string    `json:"title"`
	Method           string    `json:"method,omitempty"`
	Resolution       float64   `json:"resolution,omitempty"`
	ReleaseDate      string    `json:"releaseDate,omitempty"`
	UniProtAccession string    `json:"uniprotAccession,omitempty"`
	Organism         string    `json:"organism,omitempty"`
	MeanPLDDT        float64   `json:"meanPlddt,omitempty"`
	ModelVersion     int       `json:"modelVersion,omitempty"`
	CoordinatesURL   string    `json:"coordinatesUrl"`
	FetchedAt        time.Time `json:"fetchedAt"`
}

// Coordinates locates the coordinate file of a structure.
type Coordinates struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Format string `json:"format"`
}

// BatchResult is the outcome of one identifier in MetadataBatch.
type BatchResult struct {
	Input    string    `json:"input"`
	Metadata *Metadata `json:"metadata,omitempty"`
	Error    string    `json:"error,omitempty"`
	Err      error     `json:"-"`
}

// Config configures a Loader.
type Config struct {
	RCSBBaseURL      string
	AlphaFoldBaseURL string
	DownloadBaseURL  string
	HTTPClient       *http.Client
	Retry            fetch.RetryOptions
	Concurrency      int
}

// Loader fetches structure metadata.
type Loader struct {
	cfg   Config
	store cache.Store
	group singleflight.Group
}

// NewLoader creates a loader. A nil store disables caching.
func NewLoader(store cache.Store, cfg Config) *Loader {
	if cfg.RCSBBaseURL == "" {
		cfg.RCSBBaseURL = DefaultRCSBURL
	}
	if cfg.AlphaFoldBaseURL == "" {
		cfg.AlphaFoldBaseURL = DefaultAlphaFoldURL
	}
	if cfg.DownloadBaseURL == "" {
		cfg.DownloadBaseURL = DefaultDownloadURL
	}
	cfg.RCSBBaseURL = strings.TrimRight(cfg.RCSBBaseURL, "/")
	cfg.AlphaFoldBaseURL = strings.TrimRight(cfg.AlphaFoldBaseURL, "/")
	cfg.DownloadBaseURL = strings.TrimRight(cfg.DownloadBaseURL, "/")
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Loader{cfg: cfg, store: store}
}

// Metadata returns metadata for a PDB id, UniProt accession or AlphaFold model id.
// Concurrent misses for the same structure share one upstream request.
func (l *Loader) Metadata(ctx context.Context, raw string) (*Metadata, error) {
	id, err := ParseID(raw)
	if err != nil {
		return nil, err
	}

	if md, ok := l.cached(ctx, id); ok {
		return md, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, abandoned(id, err)
	}

	// The shared fetch ignores caller cancellation; each waiter stops on its own ctx.
	ch := l.group.DoChan(id.Key(), func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLookupTimeout)
		defer cancel()

		md, err := l.fetchMetadata(fctx, id)
		if err != nil {
			return nil, err
		}
		l.save(fctx, id, md)
		return md, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, abandoned(id, ctx.Err())
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	if res.Shared {
		log.Printf("[structure] shared in-flight lookup for %s", id.Key())
	}
	md := *res.Val.(*Metadata)
	return &md, nil
}

// MetadataBatch looks up several identifiers concurrently. Per-identifier failures
// are reported in the results; the error is only set when ctx ends.
func (l *Loader) MetadataBatch(ctx context.Context, inputs []string) ([]BatchResult, error) {
	results := make([]BatchResult, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.Concurrency)
	for i, input := range inputs {
		results[i].Input = input
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			md, err := l.Metadata(gctx, input)
			if err != nil {
				results[i].Err = err
				results[i].Error = err.Error()
				return nil
			}
			results[i].Metadata = md
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// Coordinates returns where the mmCIF coordinates of a structure can be downloaded.
func (l *Loader) Coordinates(ctx context.Context, raw string) (*Coordinates, error) {
	id, err := ParseID(raw)
	if err != nil {
		return nil, err
	}
	if id.Kind == KindPDB {
		return &Coordinates{ID: id.String(), URL: l.downloadURL(id), Format: "mmcif"}, nil
	}

	md, err := l.Metadata(ctx, raw)
	if err != nil {
		return nil, err
	}
	if md.CoordinatesURL == "" {
		return nil, &UpstreamError{ID: id.String(), Source: SourceAlphaFold, Message: "prediction has no coordinate file"}
	}
	return &Coordinates{ID: md.ID, URL: md.CoordinatesURL, Format: "mmcif"}, nil
}

func (l *Loader) cached(ctx context.Context, id ID) (*Metadata, bool) {
	if l.store == nil {
		return nil, false
	}
	data, ok, err := l.store.Get(ctx, id.Key())
	if err != nil {
		log.Printf("[structure] cache read for %s failed: %v", id.Key(), err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var md Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		log.Printf("[structure] dropping unreadable cache entry %s: %v", id.Key(), err)
		_ = l.store.Delete(ctx, id.Key())
		return nil, false
	}
	return &md, true
}

func (l *Loader) save(ctx context.Context, id ID, md *Metadata) {
	if l.store == nil {
		return
	}
	data, err := json.Marshal(md)
	if err != nil {
		return
	}
	if err := l.store.Set(ctx, id.Key(), data); err != nil {
		log.Printf("[structure] cache write for %s failed: %v", id.Key(), err)
	}
}

func (l *Loader) fetchMetadata(ctx context.Context, id ID) (*Metadata, error) {
	if id.Kind == KindPDB {
		return l.fetchRCSB(ctx, id)
	}
	return l.fetchAlphaFold(ctx, id)
}

func (l *Loader) get(ctx context.Context, id ID, source, endpoint string) ([]byte, error) {
	resp, err := fetch.Do(ctx, l.cfg.HTTPClient, fetch.Get(endpoint), &l.cfg.Retry)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, &NotFoundError{ID: id.String(), Source: source}
	}
	if !resp.OK() {
		return nil, &UpstreamError{ID: id.String(), Source: source, StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return resp.Body, nil
}

type rcsbEntry struct {
	Struct struct {
		Title string `json:"title"`
	} `json:"struct"`
	Exptl []struct {
		Method string `json:"method"`
	} `json:"exptl"`
	EntryInfo struct {
		ResolutionCombined []float64 `json:"resolution_combined"`
	} `json:"rcsb_entry_info"`
	AccessionInfo struct {
		InitialReleaseDate string `json:"initial_release_date"`
	} `json:"rcsb_accession_info"`
}

func (l *Loader) fetchRCSB(ctx context.Context, id ID) (*Metadata, error) {
	body, err := l.get(ctx, id, SourceRCSB, l.cfg.RCSBBaseURL+"/"+url.PathEscape(id.Value))
	if err != nil {
		return nil, err
	}

	var entry rcsbEntry
	if err := json.Unmarshal(body, &entry); err != nil {
		return nil, &UpstreamError{ID: id.String(), Source: SourceRCSB, Message: "invalid JSON: " + err.Error()}
	}

	md := &Metadata{
		ID:             id.String(),
		Source:         SourceRCSB,
		Title:          entry.Struct.Title,
		ReleaseDate:    entry.AccessionInfo.InitialReleaseDate,
		CoordinatesURL: l.downloadURL(id),
		FetchedAt:      time.Now().UTC(),
	}
	if len(entry.Exptl) > 0 {
		md.Method = entry.Exptl[0].Method
	}
	if len(entry.EntryInfo.ResolutionCombined) > 0 {
		md.Resolution = entry.EntryInfo.ResolutionCombined[0]
	}
	return md, nil
}

type alphaFoldPrediction struct {
	EntryID                string  `json:"entryId"`
	UniProtAccession       string  `json:"uniprotAccession"`
	UniProtDescription     string  `json:"uniprotDescription"`
	OrganismScientificName string  `json:"organismScientificName"`
	GlobalMetricValue      float64 `json:"globalMetricValue"`
	LatestVersion          int     `json:"latestVersion"`
	ModelCreatedDate       string  `json:"modelCreatedDate"`
	CifURL                 string  `json:"cifUrl"`
}

func (l *Loader) fetchAlphaFold(ctx context.Context, id ID) (*Metadata, error) {
	body, err := l.get(ctx, id, SourceAlphaFold, l.cfg.AlphaFoldBaseURL+"/"+url.PathEscape(id.Value))
	if err != nil {
		return nil, err
	}

	var predictions []alphaFoldPrediction
	if err := json.Unmarshal(body, &predictions); err != nil {
		return nil, &UpstreamError{ID: id.String(), Source: SourceAlphaFold, Message: "invalid JSON: " + err.Error()}
	}
	if len(predictions) == 0 {
		return nil, &NotFoundError{ID: id.String(), Source: SourceAlphaFold}
	}

	p := predictions[0]
	wantEntry := fmt.Sprintf("AF-%s-F%d", id.Value, max(id.Fragment, 1))
	for _, candidate := range predictions {
		if candidate.EntryID == wantEntry {
			p = candidate
			break
		}
	}

	entryID := p.EntryID
	if entryID == "" {
		entryID = wantEntry
	}
	return &Metadata{
		ID:               entryID,
		Source:           SourceAlphaFold,
		Title:            p.UniProtDescription,
		Method:           "PREDICTED",
		ReleaseDate:      p.ModelCreatedDate,
		UniProtAccession: p.UniProtAccession,
		Organism:         p.OrganismScientificName,
		MeanPLDDT:        p.GlobalMetricValue,
		ModelVersion:     p.LatestVersion,
		CoordinatesURL:   p.CifURL,
		FetchedAt:        time.Now().UTC(),
	}, nil
}

func (l *Loader) downloadURL(id ID) string {
	return fmt.Sprintf("%s/%s.cif", l.cfg.DownloadBaseURL, id.Value)
}

// abandoned is returned to a caller whose context ended while it waited on a lookup.
func abandoned(id ID, cause error) error {
	return &fetch.Error{URL: id.String(), Kind: fetch.KindCanceled, Message: "lookup abandoned by caller", Cause: cause}
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
