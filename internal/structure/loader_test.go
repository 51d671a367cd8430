package structure

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/bioview/internal/cache"
	"github.com/jonathan/bioview/internal/fetch"
)

const rcsb4HHB = `{
  "struct": {"title": "THE CRYSTAL STRUCTURE OF HUMAN DEOXYHAEMOGLOBIN AT 1.74 ANGSTROMS RESOLUTION"},
  "exptl": [{"method": "X-RAY DIFFRACTION"}],
  "rcsb_entry_info": {"resolution_combined": [1.74]},
  "rcsb_accession_info": {"initial_release_date": "1984-07-17T00:00:00+0000"}
}`

const alphafoldP69905 = `[{
  "entryId": "AF-P69905-F1",
  "uniprotAccession": "P69905",
  "uniprotDescription": "Hemoglobin subunit alpha",
  "organismScientificName": "Homo sapiens",
  "globalMetricValue": 97.5,
  "latestVersion": 4,
  "modelCreatedDate": "2022-06-01",
  "cifUrl": "https://alphafold.ebi.ac.uk/files/AF-P69905-F1-model_v4.cif"
}]`

type upstream struct {
	server *httptest.Server
	calls  int32
	delay  time.Duration
}

func newUpstream(t *testing.T) *upstream {
	return newSlowUpstream(t, 0)
}

func newSlowUpstream(t *testing.T, delay time.Duration) *upstream {
	t.Helper()
	u := &upstream{delay: delay}
	u.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&u.calls, 1)
		if u.delay > 0 {
			time.Sleep(u.delay)
		}
		switch r.URL.Path {
		case "/rcsb/4HHB":
			_, _ = w.Write([]byte(rcsb4HHB))
		case "/alphafold/P69905":
			_, _ = w.Write([]byte(alphafoldP69905))
		case "/alphafold/Q99999":
			_, _ = w.Write([]byte(`[]`))
		case "/rcsb/5BAD":
			_, _ = w.Write([]byte(`{not json`))
		case "/rcsb/6ERR":
			w.WriteHeader(http.StatusForbidden)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(u.server.Close)
	return u
}

func (u *upstream) loader(store cache.Store) *Loader {
	return NewLoader(store, Config{
		RCSBBaseURL:      u.server.URL + "/rcsb",
		AlphaFoldBaseURL: u.server.URL + "/alphafold",
		DownloadBaseURL:  "https://files.example.org/download/",
		HTTPClient:       u.server.Client(),
		Retry:            fetch.RetryOptions{Timeout: time.Second, RetryDelay: time.Millisecond},
	})
}

func TestParseID(t *testing.T) {
	tests := []struct {
		input    string
		kind     IDKind
		value    string
		fragment int
		key      string
	}{
		{"4hhb", KindPDB, "4HHB", 0, "pdb:4HHB"},
		{" 1CRN.cif ", KindPDB, "1CRN", 0, "pdb:1CRN"},
		{"p69905", KindUniProt, "P69905", 1, "alphafold:P69905-F1"},
		{"A0A024RBG1", KindUniProt, "A0A024RBG1", 1, "alphafold:A0A024RBG1-F1"},
		{"AF-P69905-F1", KindAlphaFold, "P69905", 1, "alphafold:P69905-F1"},
		{"af-q8w3k0-f2-model_v4", KindAlphaFold, "Q8W3K0", 2, "alphafold:Q8W3K0-F2"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			id, err := ParseID(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, id.Kind)
			assert.Equal(t, tt.value, id.Value)
			assert.Equal(t, tt.fragment, id.Fragment)
			assert.Equal(t, tt.key, id.Key())
		})
	}
}

func TestParseID_Invalid(t *testing.T) {
	for _, input := range []string{"", "HHB", "ABCD", "4HHBX", "AF-NOTANACC-F1", "AF-P69905-F0", "hello world"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseID(input)
			var invalid *InvalidIDError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, input, invalid.Input)
		})
	}
}

func TestMetadata_RCSB(t *testing.T) {
	u := newUpstream(t)
	l := u.loader(nil)

	md, err := l.Metadata(context.Background(), "4hhb")
	require.NoError(t, err)
	assert.Equal(t, "4HHB", md.ID)
	assert.Equal(t, SourceRCSB, md.Source)
	assert.Equal(t, "X-RAY DIFFRACTION", md.Method)
	assert.InDelta(t, 1.74, md.Resolution, 1e-9)
	assert.Contains(t, md.Title, "DEOXYHAEMOGLOBIN")
	assert.Equal(t, "https://files.example.org/download/4HHB.cif", md.CoordinatesURL)
}

func TestMetadata_AlphaFold(t *testing.T) {
	u := newUpstream(t)
	l := u.loader(nil)

	for _, input := range []string{"P69905", "AF-P69905-F1"} {
		md, err := l.Metadata(context.Background(), input)
		require.NoError(t, err)
		assert.Equal(t, "AF-P69905-F1", md.ID)
		assert.Equal(t, SourceAlphaFold, md.Source)
		assert.Equal(t, "Homo sapiens", md.Organism)
		assert.InDelta(t, 97.5, md.MeanPLDDT, 1e-9)
		assert.Equal(t, 4, md.ModelVersion)
		assert.True(t, strings.HasSuffix(md.CoordinatesURL, ".cif"))
	}
}

func TestMetadata_Errors(t *testing.T) {
	u := newUpstream(t)
	l := u.loader(nil)
	ctx := context.Background()

	_, err := l.Metadata(ctx, "9ZZZ")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, SourceRCSB, nf.Source)

	_, err = l.Metadata(ctx, "Q99999")
	assert.True(t, IsNotFound(err), "empty prediction list is not found")

	_, err = l.Metadata(ctx, "5BAD")
	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Contains(t, upErr.Message, "invalid JSON")

	_, err = l.Metadata(ctx, "6ERR")
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, http.StatusForbidden, upErr.StatusCode)

	calls := atomic.LoadInt32(&u.calls)
	_, err = l.Metadata(ctx, "not an id")
	var invalid *InvalidIDError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, calls, atomic.LoadInt32(&u.calls), "invalid ids never reach upstream")
}

func TestMetadata_ReadsThroughCache(t *testing.T) {
	u := newUpstream(t)
	store := cache.NewMemory(time.Hour)
	l := u.loader(store)
	ctx := context.Background()

	first, err := l.Metadata(ctx, "4HHB")
	require.NoError(t, err)
	second, err := l.Metadata(ctx, "4hhb")
	require.NoError(t, err)

	assert.Equal(t, first.Title, second.Title)
	assert.Equal(t, int32(1), atomic.LoadInt32(&u.calls))

	_, ok, err := store.Get(ctx, "pdb:4HHB")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMetadata_DropsCorruptCacheEntry(t *testing.T) {
	u := newUpstream(t)
	store := cache.NewMemory(time.Hour)
	require.NoError(t, store.Set(context.Background(), "pdb:4HHB", []byte("garbage")))
	l := u.loader(store)

	md, err := l.Metadata(context.Background(), "4HHB")
	require.NoError(t, err)
	assert.Equal(t, "4HHB", md.ID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&u.calls))
}

func TestMetadata_ConcurrentMissesShareRequest(t *testing.T) {
	u := newSlowUpstream(t, 50*time.Millisecond)
	l := u.loader(nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Metadata(context.Background(), "4HHB")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Less(t, atomic.LoadInt32(&u.calls), int32(8))
}

func TestMetadata_CanceledCallerDoesNotFailSharedLookup(t *testing.T) {
	u := newSlowUpstream(t, 300*time.Millisecond)
	l := u.loader(cache.NewMemory(time.Hour))

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := l.Metadata(ctxA, "4HHB")
		errA <- err
	}()

	// B joins the lookup A started, then A goes away.
	time.Sleep(20 * time.Millisecond)
	type outcome struct {
		md  *Metadata
		err error
	}
	resB := make(chan outcome, 1)
	go func() {
		md, err := l.Metadata(context.Background(), "4HHB")
		resB <- outcome{md, err}
	}()
	time.Sleep(30 * time.Millisecond)
	cancelA()

	err := <-errA
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	var fe *fetch.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, fetch.KindCanceled, fe.Kind)

	b := <-resB
	require.NoError(t, b.err)
	assert.Equal(t, "4HHB", b.md.ID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&u.calls))

	_, err = l.Metadata(context.Background(), "4HHB")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&u.calls), "shared result is cached")
}

func TestMetadata_CanceledBeforeLookup(t *testing.T) {
	u := newUpstream(t)
	l := u.loader(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Metadata(ctx, "4HHB")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, atomic.LoadInt32(&u.calls))
}

func TestMetadataBatch(t *testing.T) {
	u := newUpstream(t)
	l := u.loader(cache.NewMemory(time.Hour))

	results, err := l.MetadataBatch(context.Background(), []string{"4HHB", "bogus id", "P69905", "9ZZZ"})
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, "4HHB", results[0].Metadata.ID)
	assert.Empty(t, results[0].Error)

	assert.Nil(t, results[1].Metadata)
	assert.Contains(t, results[1].Error, "not a PDB id")

	assert.Equal(t, "AF-P69905-F1", results[2].Metadata.ID)

	assert.True(t, IsNotFound(results[3].Err))
	assert.Equal(t, "9ZZZ", results[3].Input)
}

func TestMetadataBatch_CanceledContext(t *testing.T) {
	u := newUpstream(t)
	l := u.loader(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.MetadataBatch(ctx, []string{"4HHB", "1CRN"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCoordinates(t *testing.T) {
	u := newUpstream(t)
	l := u.loader(nil)
	ctx := context.Background()

	coords, err := l.Coordinates(ctx, "1crn")
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.org/download/1CRN.cif", coords.URL)
	assert.Equal(t, "mmcif", coords.Format)
	assert.Zero(t, atomic.LoadInt32(&u.calls), "PDB coordinates need no lookup")

	coords, err = l.Coordinates(ctx, "AF-P69905-F1")
	require.NoError(t, err)
	assert.Equal(t, "https://alphafold.ebi.ac.uk/files/AF-P69905-F1-model_v4.cif", coords.URL)
	assert.Equal(t, "AF-P69905-F1", coords.ID)
}
