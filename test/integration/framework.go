package integration

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	elasticsearch "github.com/elastic/go-elasticsearch/v7"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quidditch/esdsl/pkg/dsl/compiler"
	"github.com/quidditch/esdsl/pkg/esindex"
)

// Environment variables selecting the live cluster.
const (
	addressesEnv     = "ESDSL_IT_ADDRESSES"
	engineVersionEnv = "ESDSL_IT_ENGINE_VERSION"
)

// TestCluster is a live Elasticsearch cluster used by the integration
// tests. Indices created through it are deleted by Stop.
type TestCluster struct {
	t       *testing.T
	logger  *zap.Logger
	client  *elasticsearch.Client
	cluster *esindex.Cluster
	indices []string
	mu      sync.Mutex
}

// NewTestCluster connects to the cluster named by ESDSL_IT_ADDRESSES. The
// test is skipped in short mode or when no cluster is configured.
func NewTestCluster(t *testing.T) *TestCluster {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	addresses := os.Getenv(addressesEnv)
	if addresses == "" {
		t.Skipf("Skipping integration test, %s is not set", addressesEnv)
	}

	version := compiler.V2
	if v := os.Getenv(engineVersionEnv); v != "" {
		parsed, err := compiler.ParseVersion(v)
		if err != nil {
			t.Fatalf("Invalid %s: %v", engineVersionEnv, err)
		}
		version = parsed
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: strings.Split(addresses, ","),
	})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	tc := &TestCluster{
		t:      t,
		logger: logger,
		client: client,
		cluster: esindex.NewCluster(client,
			esindex.WithLogger(logger),
			esindex.WithCompiler(compiler.New(compiler.WithVersion(version))),
		),
	}
	t.Cleanup(tc.Stop)
	return tc
}

// CreateIndex creates an empty index with a unique name.
func (tc *TestCluster) CreateIndex(ctx context.Context, prefix string) *esindex.Index {
	tc.t.Helper()
	name := fmt.Sprintf("%s-%s", prefix, uuid.New().String()[:8])

	res, err := tc.client.Indices.Create(name, tc.client.Indices.Create.WithContext(ctx))
	if err != nil {
		tc.t.Fatalf("Failed to create index %s: %v", name, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		tc.t.Fatalf("Failed to create index %s: %s", name, res.String())
	}

	tc.mu.Lock()
	tc.indices = append(tc.indices, name)
	tc.mu.Unlock()
	tc.logger.Info("Created index", zap.String("index", name))
	return tc.cluster.Index(name)
}

// Stop deletes every index created by the test.
func (tc *TestCluster) Stop() {
	tc.mu.Lock()
	indices := tc.indices
	tc.indices = nil
	tc.mu.Unlock()
	if len(indices) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := tc.client.Indices.Delete(indices, tc.client.Indices.Delete.WithContext(ctx))
	if err != nil {
		tc.logger.Warn("Failed to delete indices", zap.Strings("indices", indices), zap.Error(err))
		return
	}
	res.Body.Close()
}
