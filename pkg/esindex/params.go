package esindex

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/quidditch/esdsl/pkg/dsl/expr"
)

// searchOptions maps search parameters onto esapi search options.
func (c *Cluster) searchOptions(params *expr.Params) ([]func(*esapi.SearchRequest), error) {
	s := c.client.Search
	var opts []func(*esapi.SearchRequest)
	var err error
	params.Range(func(key string, v any) bool {
		switch key {
		case "routing":
			opts = append(opts, s.WithRouting(splitList(v)...))
		case "preference":
			opts = append(opts, s.WithPreference(fmt.Sprint(v)))
		case "timeout":
			var d time.Duration
			if d, err = toDuration(key, v); err == nil {
				opts = append(opts, s.WithTimeout(d))
			}
		case "search_type":
			opts = append(opts, s.WithSearchType(fmt.Sprint(v)))
		case "query_cache", "request_cache":
			var b bool
			if b, err = toBool(key, v); err == nil {
				opts = append(opts, s.WithRequestCache(b))
			}
		case "terminate_after":
			var n int
			if n, err = toInt(key, v); err == nil {
				opts = append(opts, s.WithTerminateAfter(n))
			}
		case "scroll":
			var d time.Duration
			if d, err = toDuration(key, v); err == nil {
				opts = append(opts, s.WithScroll(d))
			}
		default:
			c.logger.Warn("ignoring unsupported search parameter", zap.String("param", key))
		}
		return err == nil
	})
	return opts, err
}

func (c *Cluster) countOptions(params *expr.Params) []func(*esapi.CountRequest) {
	var opts []func(*esapi.CountRequest)
	params.Range(func(key string, v any) bool {
		switch key {
		case "routing":
			opts = append(opts, c.client.Count.WithRouting(splitList(v)...))
		case "preference":
			opts = append(opts, c.client.Count.WithPreference(fmt.Sprint(v)))
		default:
			c.logger.Warn("ignoring unsupported count parameter", zap.String("param", key))
		}
		return true
	})
	return opts
}

func (c *Cluster) deleteOptions(params *expr.Params) ([]func(*esapi.DeleteByQueryRequest), error) {
	d := c.client.DeleteByQuery
	var opts []func(*esapi.DeleteByQueryRequest)
	var err error
	params.Range(func(key string, v any) bool {
		switch key {
		case "routing":
			opts = append(opts, d.WithRouting(splitList(v)...))
		case "timeout":
			var dur time.Duration
			if dur, err = toDuration(key, v); err == nil {
				opts = append(opts, d.WithTimeout(dur))
			}
		case "refresh":
			var b bool
			if b, err = toBool(key, v); err == nil {
				opts = append(opts, d.WithRefresh(b))
			}
		case "wait_for_active_shards":
			opts = append(opts, d.WithWaitForActiveShards(fmt.Sprint(v)))
		default:
			c.logger.Warn("ignoring unsupported delete parameter", zap.String("param", key))
		}
		return err == nil
	})
	return opts, err
}

// splitList accepts a comma separated string or a list of values.
func splitList(v any) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		out := make([]string, len(val))
		for i, item := range val {
			out[i] = fmt.Sprint(item)
		}
		return out
	}
	return strings.Split(fmt.Sprint(v), ",")
}

func toDuration(key string, v any) (time.Duration, error) {
	d, err := cast.ToDurationE(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func toBool(key string, v any) (bool, error) {
	b, err := cast.ToBoolE(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func toInt(key string, v any) (int, error) {
	switch f := v.(type) {
	case float64:
		if f != math.Trunc(f) {
			return 0, fmt.Errorf("invalid %s: %v is not an integer", key, f)
		}
	case float32:
		if float64(f) != math.Trunc(float64(f)) {
			return 0, fmt.Errorf("invalid %s: %v is not an integer", key, f)
		}
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
