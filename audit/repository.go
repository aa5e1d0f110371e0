// audit/repository.go
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const DefaultIndex = "archive-events"

type Repository interface {
	LogEvent(ctx context.Context, event ArchiveEvent) error
	QueryEvents(ctx context.Context, from, to time.Time, key string) ([]ArchiveEvent, error)
}

type ElasticsearchRepository struct {
	esClient *elasticsearch.Client
	index    string
}

// NewElasticsearchRepository creates a new repository with a given Elasticsearch client URL.
func NewElasticsearchRepository(esURL, index string) (*ElasticsearchRepository, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{esURL},
	}
	esClient, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if index == "" {
		index = DefaultIndex
	}
	return &ElasticsearchRepository{esClient: esClient, index: index}, nil
}

// LogEvent indexes an archive event in Elasticsearch.
func (r *ElasticsearchRepository) LogEvent(ctx context.Context, event ArchiveEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      r.index,
		DocumentID: event.ID,
		Body:       strings.NewReader(string(data)),
	}

	res, err := req.Do(ctx, r.esClient)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error indexing document: %s", res.String())
	}

	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source ArchiveEvent `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// QueryEvents searches for archive events within a time frame, optionally filtered by archive key.
func (r *ElasticsearchRepository) QueryEvents(ctx context.Context, from, to time.Time, key string) ([]ArchiveEvent, error) {
	var buf strings.Builder
	if err := json.NewEncoder(&buf).Encode(eventQuery(from, to, key)); err != nil {
		return nil, err
	}

	res, err := r.esClient.Search(
		r.esClient.Search.WithContext(ctx),
		r.esClient.Search.WithIndex(r.index),
		r.esClient.Search.WithBody(strings.NewReader(buf.String())),
		r.esClient.Search.WithSort("timestamp:asc"),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("error searching documents: %s", res.String())
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	events := make([]ArchiveEvent, len(parsed.Hits.Hits))
	for i, hit := range parsed.Hits.Hits {
		events[i] = hit.Source
	}
	return events, nil
}

func eventQuery(from, to time.Time, key string) map[string]interface{} {
	must := []interface{}{
		map[string]interface{}{
			"range": map[string]interface{}{
				"timestamp": map[string]interface{}{
					"gte": from.Format(time.RFC3339Nano),
					"lte": to.Format(time.RFC3339Nano),
				},
			},
		},
	}
	if key != "" {
		must = append(must, map[string]interface{}{
			"term": map[string]interface{}{
				"key": key,
			},
		})
	}
	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": must,
			},
		},
	}
}
