package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	elasticsearch "github.com/elastic/go-elasticsearch/v7"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quidditch/esdsl/pkg/common/config"
	"github.com/quidditch/esdsl/pkg/common/logging"
	"github.com/quidditch/esdsl/pkg/common/metrics"
	"github.com/quidditch/esdsl/pkg/dsl/compiler"
	"github.com/quidditch/esdsl/pkg/dsl/expr"
	"github.com/quidditch/esdsl/pkg/dsl/search"
	"github.com/quidditch/esdsl/pkg/dsl/wire"
	"github.com/quidditch/esdsl/pkg/esindex"
	"github.com/quidditch/esdsl/pkg/schema"
	"github.com/quidditch/esdsl/pkg/server"
)

var (
	cfgFile  string
	logLevel string
	cfg      *config.Config
	logger   *zap.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "esdsl",
	Short: "Elasticsearch query and mapping DSL",
	Long: `esdsl compiles document schemas into Elasticsearch mappings, applies them
to an index, runs searches built from the schema and serves compiled mappings
over HTTP.`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/esdsl/esdsl.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level, overrides the config file")

	searchCmd.Flags().StringArray("filter", nil, "term filter as field=value, repeatable")
	searchCmd.Flags().StringArray("order", nil, "sort field, prefix with - for descending, repeatable")
	searchCmd.Flags().Int("limit", 10, "maximum number of hits")
	searchCmd.Flags().Int("offset", 0, "number of hits to skip")
	searchCmd.Flags().Bool("dry-run", false, "print the compiled request body instead of searching")

	rootCmd.AddCommand(mappingCmd, putMappingCmd, searchCmd, serveCmd)
}

func initConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logger, err = logging.NewLogger(cfg.LogLevel, false)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

var mappingCmd = &cobra.Command{
	Use:   "mapping [doc_type...]",
	Short: "Print the compiled mappings of the schema documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		defer logger.Sync()

		docs, err := schemaDocuments(args)
		if err != nil {
			return err
		}
		mapping, err := compiler.NewMappingCompiler().CompileAll(docs...)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), mapping)
	},
}

var putMappingCmd = &cobra.Command{
	Use:   "put-mapping [doc_type...]",
	Short: "Apply the schema mappings to the configured index",
	RunE: func(cmd *cobra.Command, args []string) error {
		defer logger.Sync()

		docs, err := schemaDocuments(args)
		if err != nil {
			return err
		}
		idx, err := openIndex(nil)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.RequestTimeout)
		defer cancel()
		for _, doc := range docs {
			if err := idx.PutMapping(ctx, doc); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: acknowledged\n", doc.DocType())
		}
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <doc_type> [query_string]",
	Short: "Search the configured index for documents of a schema type",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		defer logger.Sync()

		docs, err := schemaDocuments(args[:1])
		if err != nil {
			return err
		}
		doc := docs[0]
		sq, err := buildQuery(cmd, doc, args[1:])
		if err != nil {
			return err
		}

		if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
			body, err := sq.WithCompiler(compiler.New(compiler.WithVersion(cfg.Version()))).ToDict()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), body)
		}

		idx, err := openIndex(nil)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.RequestTimeout)
		defer cancel()

		res, err := sq.WithIndex(idx).Result(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "total: %d, took: %dms\n", res.Total, res.Took)
		for _, hit := range res.Hits {
			line, err := json.Marshal(map[string]any{"_id": hit.ID, "_score": hit.Score, "_source": hit.Source})
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(line))
		}
		return nil
	},
}

// buildQuery assembles a search on doc from the positional query string
// and the filter, order and paging flags.
func buildQuery(cmd *cobra.Command, doc *expr.Document, query []string) (*search.SearchQuery, error) {
	var q any
	if len(query) > 0 && query[0] != "" {
		q = expr.QueryString(query[0], nil)
	}
	sq := search.New(q, search.WithDocClasses(doc), search.WithLogger(logger))

	filters, _ := cmd.Flags().GetStringArray("filter")
	for _, f := range filters {
		name, raw, ok := strings.Cut(f, "=")
		if !ok {
			return nil, fmt.Errorf("invalid filter %q, expected field=value", f)
		}
		field, ok := doc.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("document %q has no field %q", doc.DocType(), name)
		}
		sq = sq.Filter(field.Eq(parseValue(raw)))
	}

	orders, _ := cmd.Flags().GetStringArray("order")
	for _, o := range orders {
		name, desc := strings.CutPrefix(o, "-")
		field, ok := doc.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("document %q has no field %q", doc.DocType(), name)
		}
		if desc {
			sq = sq.OrderBy(field.Desc())
		} else {
			sq = sq.OrderBy(field)
		}
	}

	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")
	return sq.Limit(limit).Offset(offset), nil
}

// parseValue reads a filter value as JSON, falling back to a string.
func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve compiled mappings over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		defer logger.Sync()

		if cfg.SchemaFile == "" {
			return errors.New("schema_file is not configured")
		}
		registry, err := schema.Load(cfg.SchemaFile)
		if err != nil {
			return err
		}

		prom := prometheus.NewRegistry()
		prom.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts := []server.Option{
			server.WithLogger(logger),
			server.WithCacheSize(cfg.MappingCacheSize),
			server.WithPrometheusRegistry(prom),
		}
		if cfg.Index != "" {
			idx, err := openIndex(prom)
			if err != nil {
				return err
			}
			opts = append(opts, server.WithIndex(idx))
		}

		addr := fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.RESTPort)
		srv, err := server.New(addr, registry, opts...)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		if err := srv.Start(ctx); err != nil {
			return err
		}

		// Setup signal handling
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("Received shutdown signal, stopping server...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
		defer shutdownCancel()
		return srv.Stop(shutdownCtx)
	},
}

// schemaDocuments loads the configured schema and returns the named
// documents, or all of them when names is empty.
func schemaDocuments(names []string) ([]*expr.Document, error) {
	if cfg.SchemaFile == "" {
		return nil, errors.New("schema_file is not configured")
	}
	registry, err := schema.Load(cfg.SchemaFile)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return registry.Documents(), nil
	}
	docs := make([]*expr.Document, 0, len(names))
	for _, name := range names {
		doc, ok := registry.Get(name)
		if !ok {
			return nil, fmt.Errorf("document type %q is not declared in %s", name, cfg.SchemaFile)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// openIndex connects to the configured index. Metrics are registered on
// reg when it is not nil.
func openIndex(reg prometheus.Registerer) (*esindex.Index, error) {
	if cfg.Index == "" {
		return nil, errors.New("index is not configured")
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	cluster := esindex.NewCluster(client,
		esindex.WithCompiler(compiler.New(compiler.WithVersion(cfg.Version()))),
		esindex.WithLogger(logger),
		esindex.WithMetrics(metrics.NewMetricsCollector("esindex", reg)),
	)
	logger.Info("Using index",
		zap.Strings("addresses", cfg.Addresses),
		zap.String("index", cfg.Index),
		zap.String("engine_version", cfg.EngineVersion))
	return cluster.Index(cfg.Index), nil
}

func printJSON(w io.Writer, v *wire.Object) error {
	data, err := wire.MarshalIndent(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
