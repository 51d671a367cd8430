package structure

import (
	"regexp"
	"strconv"
	"strings"
)

// IDKind is the shape of a structure identifier.
type IDKind string

const (
	KindPDB       IDKind = "pdb"
	KindUniProt   IDKind = "uniprot"
	KindAlphaFold IDKind = "alphafold"
)

// ID is a normalized structure identifier. For KindPDB Value is the upper-case
// four character entry id; for the other kinds it is the UniProt accession.
type ID struct {
	Kind     IDKind
	Value    string
	Fragment int
}

// Key is the cache key of the identifier. A bare accession and its first AlphaFold
// fragment share a key.
func (id ID) Key() string {
	if id.Kind == KindPDB {
		return "pdb:" + id.Value
	}
	return "alphafold:" + id.Value + "-F" + strconv.Itoa(max(id.Fragment, 1))
}

func (id ID) String() string {
	switch id.Kind {
	case KindPDB:
		return id.Value
	case KindAlphaFold:
		return "AF-" + id.Value + "-F" + strconv.Itoa(id.Fragment)
	default:
		return id.Value
	}
}

var (
	pdbPattern       = regexp.MustCompile(`^[0-9][A-Z0-9]{3}$`)
	uniprotPattern   = regexp.MustCompile(`^(?:[OPQ][0-9][A-Z0-9]{3}[0-9]|[A-NR-Z][0-9](?:[A-Z][A-Z0-9]{2}[0-9]){1,2})$`)
	alphafoldPattern = regexp.MustCompile(`^AF-([A-Z0-9]+)-F([0-9]+)(?:-MODEL_V[0-9]+)?$`)
)

type normalizer func(s string) (ID, bool)

// normalizers are tried in order; each recognizes one identifier shape.
var normalizers = []normalizer{
	normalizePDB,
	normalizeAlphaFoldModel,
	normalizeUniProt,
}

func normalizePDB(s string) (ID, bool) {
	if !pdbPattern.MatchString(s) {
		return ID{}, false
	}
	return ID{Kind: KindPDB, Value: s}, true
}

func normalizeAlphaFoldModel(s string) (ID, bool) {
	m := alphafoldPattern.FindStringSubmatch(s)
	if m == nil || !uniprotPattern.MatchString(m[1]) {
		return ID{}, false
	}
	fragment, err := strconv.Atoi(m[2])
	if err != nil || fragment < 1 {
		return ID{}, false
	}
	return ID{Kind: KindAlphaFold, Value: m[1], Fragment: fragment}, true
}

func normalizeUniProt(s string) (ID, bool) {
	if !uniprotPattern.MatchString(s) {
		return ID{}, false
	}
	return ID{Kind: KindUniProt, Value: s, Fragment: 1}, true
}

// ParseID normalizes a user-supplied identifier.
func ParseID(raw string) (ID, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.TrimSuffix(strings.TrimSuffix(s, ".CIF"), ".PDB")
	for _, normalize := range normalizers {
		if id, ok := normalize(s); ok {
			return id, nil
		}
	}
	return ID{}, &InvalidIDError{Input: raw}
}
