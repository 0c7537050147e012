package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"testing"

	"github.com/quidditch/esdsl/pkg/dsl/expr"
)

// engineType is a mapping type of current Elasticsearch releases that the
// expression package has no constant for.
type engineType string

func (t engineType) Name() string             { return string(t) }
func (t engineType) Document() *expr.Document { return nil }

const (
	keyword engineType = "keyword"
	text    engineType = "text"
)

// carDocument declares the car documents used across the tests.
func carDocument() *expr.Document {
	return expr.NewDocument("_doc").
		Declare("vendor", expr.NewField("", keyword)).
		Declare("model", expr.NewField("", text)).
		Declare("status", expr.NewField("", expr.Integer)).
		Declare("price", expr.NewField("", expr.Float))
}

// IndexDocument stores source under id and refreshes the index.
func (tc *TestCluster) IndexDocument(ctx context.Context, index, id string, source map[string]any) {
	tc.t.Helper()
	data, err := json.Marshal(source)
	if err != nil {
		tc.t.Fatalf("Failed to marshal document: %v", err)
	}

	idx := tc.client.Index
	res, err := idx(index, bytes.NewReader(data),
		idx.WithContext(ctx),
		idx.WithDocumentID(id),
		idx.WithRefresh("true"),
	)
	if err != nil {
		tc.t.Fatalf("Failed to index document %s: %v", id, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		tc.t.Fatalf("Failed to index document %s: %s", id, res.String())
	}
}

// seedCars indexes a fixed set of cars.
func seedCars(ctx context.Context, t *testing.T, tc *TestCluster, index string) {
	t.Helper()
	cars := []map[string]any{
		{"vendor": "Subaru", "model": "Forester XT", "status": 1, "price": 12000.0},
		{"vendor": "Subaru", "model": "Impreza WRX", "status": 0, "price": 18000.0},
		{"vendor": "Lada", "model": "Niva", "status": 1, "price": 4000.0},
	}
	for i, car := range cars {
		tc.IndexDocument(ctx, index, strconv.Itoa(i+1), car)
	}
}
