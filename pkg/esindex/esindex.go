// Package esindex runs compiled search queries and mappings against an
// Elasticsearch cluster through the official v7 client.
package esindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	elasticsearch "github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/quidditch/esdsl/pkg/common/metrics"
	"github.com/quidditch/esdsl/pkg/dsl/compiler"
	"github.com/quidditch/esdsl/pkg/dsl/expr"
	"github.com/quidditch/esdsl/pkg/dsl/search"
	"github.com/quidditch/esdsl/pkg/dsl/wire"
)

const tracerName = "github.com/quidditch/esdsl/pkg/esindex"

var (
	_ search.Searcher = (*Cluster)(nil)
	_ search.Index    = (*Index)(nil)
)

// Cluster searches across every index of a cluster.
type Cluster struct {
	client   *elasticsearch.Client
	compiler *compiler.Compiler
	mappings *compiler.MappingCompiler
	logger   *zap.Logger
	metrics  *metrics.MetricsCollector
	tracer   trace.Tracer
}

// Option configures a Cluster
type Option func(*Cluster)

// WithCompiler sets the query compiler, which selects the engine version.
func WithCompiler(c *compiler.Compiler) Option {
	return func(cl *Cluster) { cl.compiler = c }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(cl *Cluster) { cl.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.MetricsCollector) Option {
	return func(cl *Cluster) { cl.metrics = m }
}

// WithTracerProvider sets the provider of the request spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cl *Cluster) { cl.tracer = tp.Tracer(tracerName) }
}

// NewCluster wraps an Elasticsearch client.
func NewCluster(client *elasticsearch.Client, opts ...Option) *Cluster {
	c := &Cluster{
		client:   client,
		compiler: compiler.New(),
		mappings: compiler.NewMappingCompiler(),
		logger:   zap.NewNop(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = metrics.NewMetricsCollector("esindex", nil)
	}
	return c
}

// Compiler returns the query compiler.
func (c *Cluster) Compiler() *compiler.Compiler {
	return c.compiler
}

// ObserveCompile records a compilation of a search query bound to c.
func (c *Cluster) ObserveCompile(target string, err error, duration time.Duration) {
	c.metrics.RecordCompile(target, err, duration)
}

// Index returns a handle on the named index.
func (c *Cluster) Index(name string) *Index {
	return &Index{cluster: c, name: name}
}

// Query starts a search query bound to the cluster.
func (c *Cluster) Query(q any, opts ...search.Option) *search.SearchQuery {
	return search.New(q, append([]search.Option{search.WithCluster(c), search.WithLogger(c.logger)}, opts...)...)
}

// Search runs a search across all indices.
func (c *Cluster) Search(ctx context.Context, body *wire.Object, docType string, params *expr.Params) (*search.Result, error) {
	return c.search(ctx, nil, body, docType, params)
}

func (c *Cluster) search(ctx context.Context, indices []string, body *wire.Object, docType string, params *expr.Params) (*search.Result, error) {
	opts, err := c.searchOptions(params)
	if err != nil {
		return nil, err
	}
	reader, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	var out searchResponse
	err = c.do(ctx, indexLabel(indices), "search", func(ctx context.Context) (*esapi.Response, error) {
		s := c.client.Search
		all := []func(*esapi.SearchRequest){s.WithContext(ctx)}
		if len(indices) > 0 {
			all = append(all, s.WithIndex(indices...))
		}
		if docType != "" {
			all = append(all, s.WithDocumentType(strings.Split(docType, ",")...))
		}
		if reader != nil {
			all = append(all, s.WithBody(reader))
		}
		return s(append(all, opts...)...)
	}, &out)
	if err != nil {
		return nil, err
	}

	res, err := out.toResult()
	if err != nil {
		return nil, err
	}
	c.metrics.RecordSearchHits(indexLabel(indices), len(res.Hits))
	return res, nil
}

// do runs one request inside a span, records metrics and decodes a
// successful response into out.
func (c *Cluster) do(ctx context.Context, index, operation string, call func(context.Context) (*esapi.Response, error), out any) error {
	ctx, span := c.tracer.Start(ctx, "esindex."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "elasticsearch"),
			attribute.String("db.operation", operation),
			attribute.String("db.elasticsearch.index", index),
		),
	)
	defer span.End()

	start := time.Now()
	res, err := call(ctx)
	if err != nil {
		c.metrics.RecordSearchRequest(index, operation, 0, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("Request failed",
			zap.String("index", index),
			zap.String("operation", operation),
			zap.Error(err))
		return fmt.Errorf("%s request failed: %w", operation, err)
	}
	defer res.Body.Close()

	c.metrics.RecordSearchRequest(index, operation, res.StatusCode, time.Since(start))
	span.SetAttributes(attribute.Int("http.status_code", res.StatusCode))
	c.logger.Debug("Request finished",
		zap.String("index", index),
		zap.String("operation", operation),
		zap.Int("status", res.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		respErr := &ResponseError{StatusCode: res.StatusCode, Body: string(data)}
		span.SetStatus(codes.Error, respErr.Error())
		return respErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", operation, err)
	}
	return nil
}

func encodeBody(body *wire.Object) (io.Reader, error) {
	if body == nil {
		return nil, nil
	}
	data, err := wire.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	return bytes.NewReader(data), nil
}

func indexLabel(indices []string) string {
	if len(indices) == 0 {
		return "_all"
	}
	return strings.Join(indices, ",")
}

// Index is a single index of a cluster.
type Index struct {
	cluster *Cluster
	name    string
}

// Name returns the index name.
func (i *Index) Name() string { return i.name }

// Compiler returns the cluster's query compiler.
func (i *Index) Compiler() *compiler.Compiler { return i.cluster.compiler }

// ObserveCompile records a compilation of a search query bound to i.
func (i *Index) ObserveCompile(target string, err error, duration time.Duration) {
	i.cluster.ObserveCompile(target, err, duration)
}

// Query starts a search query bound to the index.
func (i *Index) Query(q any, opts ...search.Option) *search.SearchQuery {
	return search.New(q, append([]search.Option{search.WithIndex(i), search.WithLogger(i.cluster.logger)}, opts...)...)
}

// Search runs a search on the index.
func (i *Index) Search(ctx context.Context, body *wire.Object, docType string, params *expr.Params) (*search.Result, error) {
	return i.cluster.search(ctx, []string{i.name}, body, docType, params)
}

// Count counts the documents matching body, or every document when body
// is nil.
func (i *Index) Count(ctx context.Context, body *wire.Object, docType string, params *expr.Params) (int64, error) {
	c := i.cluster
	reader, err := encodeBody(body)
	if err != nil {
		return 0, err
	}
	opts := c.countOptions(params)

	var out countResponse
	err = c.do(ctx, i.name, "count", func(ctx context.Context) (*esapi.Response, error) {
		cnt := c.client.Count
		all := []func(*esapi.CountRequest){cnt.WithContext(ctx), cnt.WithIndex(i.name)}
		if docType != "" {
			all = append(all, cnt.WithDocumentType(strings.Split(docType, ",")...))
		}
		if reader != nil {
			all = append(all, cnt.WithBody(reader))
		}
		return cnt(append(all, opts...)...)
	}, &out)
	if err != nil {
		return 0, err
	}
	return out.Count, nil
}

// Exists reports whether any document matches body. A true refresh param
// refreshes the index first; other params apply to the search.
func (i *Index) Exists(ctx context.Context, body *wire.Object, docType string, params *expr.Params) (bool, error) {
	c := i.cluster
	searchParams := expr.MergeParams(params)
	if refresh, ok := searchParams.Get("refresh"); ok {
		searchParams.Delete("refresh")
		enabled, err := toBool("refresh", refresh)
		if err != nil {
			return false, err
		}
		if enabled {
			if err := i.Refresh(ctx); err != nil {
				return false, err
			}
		}
	}

	probe := wire.NewObject()
	if body != nil {
		probe = body.Clone()
	}
	probe.Set("size", 0)
	searchParams.Set("terminate_after", 1)

	res, err := c.search(ctx, []string{i.name}, probe, docType, searchParams)
	if err != nil {
		return false, err
	}
	return res.Total > 0, nil
}

// Refresh makes recent writes visible to searches.
func (i *Index) Refresh(ctx context.Context) error {
	c := i.cluster
	return c.do(ctx, i.name, "refresh", func(ctx context.Context) (*esapi.Response, error) {
		r := c.client.Indices.Refresh
		return r(r.WithContext(ctx), r.WithIndex(i.name))
	}, nil)
}

// DeleteByQuery deletes the documents matching body, or every document
// when body is nil.
func (i *Index) DeleteByQuery(ctx context.Context, body *wire.Object, docType string, params *expr.Params) error {
	c := i.cluster
	if body == nil {
		body = wire.ObjectOf("query", wire.ObjectOf("match_all", wire.NewObject()))
	}
	reader, err := encodeBody(body)
	if err != nil {
		return err
	}
	opts, err := c.deleteOptions(params)
	if err != nil {
		return err
	}

	return c.do(ctx, i.name, "delete_by_query", func(ctx context.Context) (*esapi.Response, error) {
		d := c.client.DeleteByQuery
		all := []func(*esapi.DeleteByQueryRequest){d.WithContext(ctx)}
		if docType != "" {
			all = append(all, d.WithDocumentType(strings.Split(docType, ",")...))
		}
		return d([]string{i.name}, reader, append(all, opts...)...)
	}, nil)
}

// PutMapping compiles the document mapping and applies it to the index.
func (i *Index) PutMapping(ctx context.Context, doc *expr.Document) error {
	c := i.cluster
	start := time.Now()
	mapping, err := c.mappings.Compile(doc)
	c.metrics.RecordCompile("mapping", err, time.Since(start))
	if err != nil {
		return fmt.Errorf("failed to compile mapping for %q: %w", doc.DocType(), err)
	}
	reader, err := encodeBody(mapping)
	if err != nil {
		return err
	}

	c.logger.Info("Putting mapping",
		zap.String("index", i.name),
		zap.String("doc_type", doc.DocType()))
	return c.do(ctx, i.name, "put_mapping", func(ctx context.Context) (*esapi.Response, error) {
		p := c.client.Indices.PutMapping
		return p(reader,
			p.WithContext(ctx),
			p.WithIndex(i.name),
			p.WithDocumentType(doc.DocType()),
			p.WithIncludeTypeName(true),
		)
	}, nil)
}
