package registry

// Standard index names shared by the record kinds.
const (
	IndexCreator        = "creator"
	IndexSubject        = "subject"
	IndexClassification = "classification"
	IndexOutcome        = "outcome"
)

// Index derives a secondary lookup key from a payload. An empty key leaves
// the record out of the index.
type Index[P any] struct {
	Name string
	Key  func(P) string
}

// indexSet maps index name to key to record positions in seq order. It is
// derived from the primary list and rebuilt on restore.
type indexSet map[string]map[string][]int

func newIndexSet[P any](indexes []Index[P]) indexSet {
	set := make(indexSet, len(indexes))
	for _, idx := range indexes {
		set[idx.Name] = map[string][]int{}
	}
	return set
}

func (s indexSet) add(name, key string, pos int) {
	if key == "" {
		return
	}
	s[name][key] = append(s[name][key], pos)
}
