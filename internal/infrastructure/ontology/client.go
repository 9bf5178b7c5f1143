// Package ontology 提供本体事实服务的只读 HTTP 客户端
package ontology

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"project-context-api/internal/application/retrieval"
	"project-context-api/internal/config"
)

var tracer = otel.Tracer("ontology")

// Client 本体事实服务客户端
// 检索路径上的协作方，只读，不承担写入
type Client struct {
	endpoint   string
	httpClient *http.Client
}

var _ retrieval.FactClient = (*Client)(nil)

type factDTO struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

type searchResponse struct {
	Facts []factDTO `json:"facts"`
}

func NewClient(cfg *config.OntologyConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		endpoint: cfg.Endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Search 查询与问题相关的结构化事实
func (c *Client) Search(ctx context.Context, query, projectID string, limit int) ([]retrieval.Fact, error) {
	ctx, span := tracer.Start(ctx, "ontology.Search",
		trace.WithAttributes(
			attribute.String("project_id", projectID),
			attribute.Int("limit", limit),
		))
	defer span.End()

	endpoint := strings.TrimRight(c.endpoint, "/")
	if endpoint == "" {
		return nil, fmt.Errorf("ontology endpoint is empty")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid ontology endpoint: %w", err)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/facts/search"
	}

	q := u.Query()
	q.Set("q", query)
	q.Set("project_id", projectID)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create ontology request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("ontology request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		err := fmt.Errorf("ontology request failed: status=%d", httpResp.StatusCode)
		span.RecordError(err)
		return nil, err
	}

	var resp searchResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to decode ontology response: %w", err)
	}

	facts := make([]retrieval.Fact, 0, len(resp.Facts))
	for _, f := range resp.Facts {
		if strings.TrimSpace(f.Text) == "" {
			continue
		}
		facts = append(facts, retrieval.Fact{
			ID:    f.ID,
			Text:  f.Text,
			Score: f.Score,
		})
	}

	span.SetAttributes(attribute.Int("result_count", len(facts)))
	return facts, nil
}
