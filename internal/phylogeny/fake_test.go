package phylogeny

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/bioview/internal/ebi"
)

// fakeEBI serves the run, status and result endpoints of both tools.
type fakeEBI struct {
	t      *testing.T
	server *httptest.Server

	mu          sync.Mutex
	calls       int
	submissions map[string][]map[string]string
	statuses    map[string]string
	results     map[string]string
	submitCode  int
	nextID      map[string]string
}

func newFakeEBI(t *testing.T) *fakeEBI {
	t.Helper()
	f := &fakeEBI{
		t:           t,
		submissions: map[string][]map[string]string{},
		statuses:    map[string]string{},
		results:     map[string]string{},
		nextID: map[string]string{
			ebi.ToolClustalOmega:    "clustalo-R20250101-000000-0001-p1m",
			ebi.ToolSimplePhylogeny: "simple_phylogeny-R20250101-000000-0002-p1m",
		},
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeEBI) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	tool := parts[0]

	switch parts[1] {
	case "run":
		assert.NoError(f.t, r.ParseForm())
		form := map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		f.submissions[tool] = append(f.submissions[tool], form)
		if f.submitCode != 0 {
			w.WriteHeader(f.submitCode)
			_, _ = w.Write([]byte("rejected"))
			return
		}
		_, _ = w.Write([]byte(f.nextID[tool]))
	case "status":
		if len(parts) < 3 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		status, ok := f.statuses[parts[2]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(status))
	case "result":
		if len(parts) < 4 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		result, ok := f.results[parts[2]+"/"+parts[3]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(result))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeEBI) setStatus(jobID, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[jobID] = status
}

func (f *fakeEBI) setResult(jobID, resultType, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[jobID+"/"+resultType] = body
}

func (f *fakeEBI) rejectSubmissions(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCode = code
}

func (f *fakeEBI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeEBI) submitted(tool string) []map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]string(nil), f.submissions[tool]...)
}

func (f *fakeEBI) tools() (*ebi.Tool, *ebi.Tool) {
	cfg := func(tool string) ebi.Config {
		return ebi.Config{
			BaseURL:    f.server.URL + "/" + tool,
			Email:      "tests@example.org",
			HTTPClient: f.server.Client(),
			RetryDelay: time.Millisecond,
		}
	}
	return ebi.NewClustalOmega(cfg(ebi.ToolClustalOmega)), ebi.NewSimplePhylogeny(cfg(ebi.ToolSimplePhylogeny))
}

func (f *fakeEBI) orchestrator(opts Options) *Orchestrator {
	clustal, simple := f.tools()
	return New(clustal, simple, opts)
}
