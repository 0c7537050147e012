package search

import (
	"context"
	"errors"
	"time"

	"github.com/quidditch/esdsl/pkg/dsl/compiler"
	"github.com/quidditch/esdsl/pkg/dsl/expr"
	"github.com/quidditch/esdsl/pkg/dsl/wire"
)

var (
	// ErrNoIndex is returned by count, exists and delete when the query is
	// not bound to an index.
	ErrNoIndex = errors.New("search query is not bound to an index")

	// ErrNoSearcher is returned when a query has neither an index nor a
	// cluster to run against.
	ErrNoSearcher = errors.New("search query is not bound to an index or cluster")
)

// Searcher runs compiled search bodies. Clusters and indices both search.
type Searcher interface {
	// Compiler returns the compiler matching the engine version.
	Compiler() *compiler.Compiler
	Search(ctx context.Context, body *wire.Object, docType string, params *expr.Params) (*Result, error)
}

// Index is a searcher bound to a single index.
type Index interface {
	Searcher
	Count(ctx context.Context, body *wire.Object, docType string, params *expr.Params) (int64, error)
	Exists(ctx context.Context, body *wire.Object, docType string, params *expr.Params) (bool, error)
	DeleteByQuery(ctx context.Context, body *wire.Object, docType string, params *expr.Params) error
}

// CompileObserver is implemented by searchers that measure compilation.
// Target is "search" for full search bodies and "query" for the bodies of
// count, exists and delete.
type CompileObserver interface {
	ObserveCompile(target string, err error, duration time.Duration)
}

// Hit is one search hit.
type Hit struct {
	ID     string
	Type   string
	Index  string
	Score  float64
	Source map[string]any
	Fields map[string]any

	// Document is the declared document class of the hit type, when known.
	Document *expr.Document
	// Instance is the value produced by the instance mapper, if any.
	Instance any
}

// Result is a decoded search response.
type Result struct {
	Total        int64
	MaxScore     float64
	Took         int64
	TimedOut     bool
	Hits         []*Hit
	Aggregations map[string]any
	ScrollID     string
}

// InstanceMapper resolves hit ids of one doc type into application values.
// Ids without an entry in the returned map get no instance.
type InstanceMapper interface {
	MapInstances(ctx context.Context, docType string, ids []string) (map[string]any, error)
}

// MapperFunc maps ids regardless of their doc type.
type MapperFunc func(ctx context.Context, ids []string) (map[string]any, error)

// MapInstances calls f.
func (f MapperFunc) MapInstances(ctx context.Context, _ string, ids []string) (map[string]any, error) {
	return f(ctx, ids)
}

// MappersByType dispatches on the hit doc type. Types without a mapper get
// no instances.
type MappersByType map[string]MapperFunc

// MapInstances calls the mapper registered for docType.
func (m MappersByType) MapInstances(ctx context.Context, docType string, ids []string) (map[string]any, error) {
	fn, ok := m[docType]
	if !ok {
		return nil, nil
	}
	return fn(ctx, ids)
}

// bindDocuments attaches the declared document of each hit's type.
func bindDocuments(res *Result, docs []*expr.Document) {
	byType := make(map[string]*expr.Document, len(docs))
	for _, d := range docs {
		byType[d.DocType()] = d
	}
	for _, hit := range res.Hits {
		if d, ok := byType[hit.Type]; ok {
			hit.Document = d
		}
	}
}

// mapInstances calls the mapper once per doc type, in first-seen order.
func mapInstances(ctx context.Context, res *Result, mapper InstanceMapper) error {
	var types []string
	ids := make(map[string][]string)
	for _, hit := range res.Hits {
		if _, ok := ids[hit.Type]; !ok {
			types = append(types, hit.Type)
		}
		ids[hit.Type] = append(ids[hit.Type], hit.ID)
	}

	for _, docType := range types {
		instances, err := mapper.MapInstances(ctx, docType, ids[docType])
		if err != nil {
			return err
		}
		for _, hit := range res.Hits {
			if hit.Type != docType {
				continue
			}
			if inst, ok := instances[hit.ID]; ok {
				hit.Instance = inst
			}
		}
	}
	return nil
}
