// Package embedclient implements the Embedding Client (C5): dual-domain
// vector generation over AWS Bedrock, batched and guarded by the shared
// circuit breaker.
package embedclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/pkg/errors"

	"github.com/giak/mnemolite/internal/breaker"
	"github.com/giak/mnemolite/internal/observability"
)

// Domain selects which embedding space a text is projected into.
type Domain string

const (
	Text   Domain = "text"
	Code   Domain = "code"
	Hybrid Domain = "hybrid" // concatenation of Text and Code vectors
)

// ErrEmbeddingServiceOpen is returned immediately when the embedding
// breaker is OPEN, without attempting the call.
var ErrEmbeddingServiceOpen = errors.New("embedclient: embedding_service circuit open")

const defaultDimensions = 768

// ModelConfig names the Bedrock model backing one domain.
type ModelConfig struct {
	Text string
	Code string
}

func (m ModelConfig) withDefaults() ModelConfig {
	if m.Text == "" {
		m.Text = "amazon.titan-embed-text-v2:0"
	}
	if m.Code == "" {
		m.Code = "amazon.titan-embed-text-v2:0"
	}
	return m
}

// invoker is the subset of *bedrockruntime.Client this package calls;
// narrowing to an interface lets tests substitute a fake without
// standing up real AWS credentials.
type invoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Client generates TEXT/CODE/HYBRID embeddings via AWS Bedrock. The AWS
// config is loaded once, in New. Texts are grouped into slices of at most
// MaxBatch, and each text is sent in its own InvokeModel call; no call
// carries more than one text.
type Client struct {
	bedrock  invoker
	models   ModelConfig
	maxBatch int
	breaker  *breaker.CircuitBreaker
	logger   observability.Logger
	metrics  observability.MetricsClient
}

// New builds a Client, loading AWS configuration for the given region.
func New(ctx context.Context, region string, models ModelConfig, maxBatch int, cb *breaker.CircuitBreaker, logger observability.Logger, metrics observability.MetricsClient) (*Client, error) {
	if maxBatch <= 0 {
		maxBatch = 16
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetrics()
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithHTTPClient(&http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "embedclient: load AWS config")
	}

	return &Client{
		bedrock:  bedrockruntime.NewFromConfig(cfg),
		models:   models.withDefaults(),
		maxBatch: maxBatch,
		breaker:  cb,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

type titanEmbeddingRequest struct {
	InputText string `json:"inputText"`
}

type titanEmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed generates one fixed-length vector per input text in the given
// domain, walking the texts in slices of at most MaxBatch and making
// one provider call per text. HYBRID requests are served by concatenating the TEXT and
// CODE vectors for each input.
func (c *Client) Embed(ctx context.Context, domain Domain, texts []string) ([][]float32, error) {
	if domain == Hybrid {
		textVecs, err := c.Embed(ctx, Text, texts)
		if err != nil {
			return nil, err
		}
		codeVecs, err := c.Embed(ctx, Code, texts)
		if err != nil {
			return nil, err
		}
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = append(append([]float32{}, textVecs[i]...), codeVecs[i]...)
		}
		return out, nil
	}

	modelID := c.models.Text
	if domain == Code {
		modelID = c.models.Code
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.maxBatch {
		end := start + c.maxBatch
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := c.embedBatch(ctx, modelID, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (c *Client) embedBatch(ctx context.Context, modelID string, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	for i, text := range texts {
		result, err := c.breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
			return c.invokeTitan(ctx, modelID, text)
		})
		if err != nil {
			if errors.Is(err, breaker.ErrOpen) {
				c.logger.Warn("embedding_service circuit open", map[string]interface{}{"model": modelID})
				return nil, ErrEmbeddingServiceOpen
			}
			return nil, errors.Wrapf(err, "embedclient: model %s", modelID)
		}
		vectors[i] = result.([]float32)
	}
	return vectors, nil
}

func (c *Client) invokeTitan(ctx context.Context, modelID, text string) ([]float32, error) {
	body, err := json.Marshal(titanEmbeddingRequest{InputText: text})
	if err != nil {
		return nil, err
	}

	resp, err := c.bedrock.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, err
	}

	var parsed titanEmbeddingResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("embedclient: parse response: %w", err)
	}
	return parsed.Embedding, nil
}

// Dimensions returns the fixed vector length this client's TEXT/CODE
// models produce (HYBRID vectors are 2x this).
func (c *Client) Dimensions() int { return defaultDimensions }

// newWithInvoker builds a Client around a caller-supplied invoker,
// bypassing AWS config loading. Exported via the internal test package
// only.
func newWithInvoker(inv invoker, models ModelConfig, maxBatch int, cb *breaker.CircuitBreaker) *Client {
	return &Client{
		bedrock:  inv,
		models:   models.withDefaults(),
		maxBatch: maxBatch,
		breaker:  cb,
		logger:   observability.NewNoopLogger(),
		metrics:  observability.NewNoopMetrics(),
	}
}
