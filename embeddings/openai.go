// Package embeddings provides the OpenAI embeddings client used to embed
// course chunks, course titles and search queries.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
)

type ModelID string

const (
	OpenAISmall ModelID = "text-embedding-3-small"
	OpenAILarge ModelID = "text-embedding-3-large"
)

// BatchSize caps how many inputs go into one API request.
const BatchSize = 100

// Result holds the output of an embedding operation. Cost unit is
// thousandths of a millionth of a dollar: a value of a billion equals 1 USD.
type Result struct {
	Vectors [][]float64
	Cost    int64
}

// Embedder is implemented by providers that can generate embeddings.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) (*Result, error)
}

type OpenAI struct {
	modelID ModelID
	apiKey  string
	client  *http.Client
}

// NewOpenAI creates an OpenAI embeddings client. An empty apiKey falls back
// to the OPENAI_API_KEY environment variable; if client is nil a default
// http.Client is used. Returns an error when no key is available.
func NewOpenAI(modelID ModelID, apiKey string, client *http.Client) (*OpenAI, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("embeddings: no API key provided and OPENAI_API_KEY not set")
	}

	if client == nil {
		client = &http.Client{}
	}

	return &OpenAI{
		modelID: modelID,
		apiKey:  apiKey,
		client:  client,
	}, nil
}

// Embed generates embeddings for the inputs, splitting them into batches of
// BatchSize to stay under API limits. Vectors come back in input order.
func (e *OpenAI) Embed(ctx context.Context, inputs []string) (*Result, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("embeddings: no inputs provided")
	}

	if len(inputs) <= BatchSize {
		return e.embedBatch(ctx, inputs)
	}

	vectors := make([][]float64, len(inputs))
	var cost int64

	for i := 0; i < len(inputs); i += BatchSize {
		end := min(i+BatchSize, len(inputs))

		result, err := e.embedBatch(ctx, inputs[i:end])
		if err != nil {
			return nil, fmt.Errorf("embeddings: batch %d-%d failed: %w", i, end, err)
		}

		copy(vectors[i:end], result.Vectors)
		cost += result.Cost
	}

	return &Result{Vectors: vectors, Cost: cost}, nil
}

func (e *OpenAI) embedBatch(ctx context.Context, inputs []string) (*Result, error) {
	payload := embeddingRequest{
		Input:          inputs,
		Model:          e.modelID,
		EncodingFormat: "float",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("embeddings: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", embeddingsEndpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("embeddings: failed to create request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", e.apiKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embeddings: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if err != nil {
			return nil, fmt.Errorf("embeddings: api error: status=%s (failed to read body: %w)", resp.Status, err)
		}
		return nil, fmt.Errorf("embeddings: api error: status=%s, body=%s", resp.Status, string(body))
	}

	var embResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, fmt.Errorf("embeddings: failed to decode response: %w", err)
	}

	// The API may return items out of order; place them by index and make
	// sure every input got a vector.
	vectors := make([][]float64, len(inputs))
	for _, item := range embResp.Data {
		if item.Index < 0 || item.Index >= len(inputs) {
			return nil, fmt.Errorf("embeddings: invalid index %d in response (expected 0-%d)", item.Index, len(inputs)-1)
		}
		vectors[item.Index] = item.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("embeddings: missing embedding for input at index %d", i)
		}
	}

	return &Result{
		Vectors: vectors,
		Cost:    e.cost(embResp.Usage.PromptTokens),
	}, nil
}

type embeddingRequest struct {
	Input          []string `json:"input"`
	Model          ModelID  `json:"model"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		PromptTokens int64 `json:"prompt_tokens"`
	} `json:"usage"`
}

func (e *OpenAI) cost(tokens int64) int64 {
	costPerToken, ok := modelCosts[e.modelID]
	if !ok {
		return 0
	}
	return tokens * costPerToken
}

// Cost per token in billionths of a dollar, derived from published pricing:
// price_per_1M_tokens * 1000.
var modelCosts = map[ModelID]int64{
	OpenAISmall: 20,  // $0.020 per 1M tokens
	OpenAILarge: 130, // $0.130 per 1M tokens
}

// embeddingsEndpoint is a variable (not a const) to allow overriding in tests.
var embeddingsEndpoint = "https://api.openai.com/v1/embeddings"
