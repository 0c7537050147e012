package esindex

import (
	"encoding/json"
	"fmt"

	"github.com/quidditch/esdsl/pkg/dsl/search"
)

// ResponseError is a non-2xx response from the search engine.
type ResponseError struct {
	StatusCode int
	Body       string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("elasticsearch returned status %d: %s", e.StatusCode, e.Body)
}

type searchResponse struct {
	Took     int64  `json:"took"`
	TimedOut bool   `json:"timed_out"`
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Total    json.RawMessage `json:"total"`
		MaxScore *float64        `json:"max_score"`
		Hits     []hitResponse   `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]any `json:"aggregations"`
}

type hitResponse struct {
	Index  string         `json:"_index"`
	Type   string         `json:"_type"`
	ID     string         `json:"_id"`
	Score  *float64       `json:"_score"`
	Source map[string]any `json:"_source"`
	Fields map[string]any `json:"fields"`
}

type countResponse struct {
	Count int64 `json:"count"`
}

// parseTotal reads hits.total, a number before 7.0 and an object after.
func parseTotal(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var obj struct {
		Value int64 `json:"value"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return 0, fmt.Errorf("failed to decode hits.total: %w", err)
	}
	return obj.Value, nil
}

func (r *searchResponse) toResult() (*search.Result, error) {
	total, err := parseTotal(r.Hits.Total)
	if err != nil {
		return nil, err
	}
	res := &search.Result{
		Total:        total,
		Took:         r.Took,
		TimedOut:     r.TimedOut,
		Aggregations: r.Aggregations,
		ScrollID:     r.ScrollID,
		Hits:         make([]*search.Hit, 0, len(r.Hits.Hits)),
	}
	if r.Hits.MaxScore != nil {
		res.MaxScore = *r.Hits.MaxScore
	}
	for _, h := range r.Hits.Hits {
		hit := &search.Hit{
			ID:     h.ID,
			Type:   h.Type,
			Index:  h.Index,
			Source: h.Source,
			Fields: h.Fields,
		}
		if h.Score != nil {
			hit.Score = *h.Score
		}
		res.Hits = append(res.Hits, hit)
	}
	return res, nil
}
