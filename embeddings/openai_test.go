package embeddings

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAI_Embed(t *testing.T) {
	// Note: not running in parallel because we modify the global embeddingsEndpoint variable

	tests := []struct {
		name       string
		modelID    ModelID
		inputs     []string
		wantErr    bool
		mockResp   string
		statusCode int
	}{
		{
			name:    "single input",
			modelID: OpenAISmall,
			inputs:  []string{"hello world"},
			mockResp: `{
				"object": "list",
				"data": [
					{"object": "embedding", "index": 0, "embedding": [0.1, 0.2, 0.3]}
				],
				"model": "text-embedding-3-small",
				"usage": {"prompt_tokens": 2, "total_tokens": 2}
			}`,
			statusCode: 200,
			wantErr:    false,
		},
		{
			name:    "multiple inputs",
			modelID: OpenAISmall,
			inputs:  []string{"hello", "world"},
			mockResp: `{
				"object": "list",
				"data": [
					{"object": "embedding", "index": 0, "embedding": [0.1, 0.2]},
					{"object": "embedding", "index": 1, "embedding": [0.3, 0.4]}
				],
				"model": "text-embedding-3-small",
				"usage": {"prompt_tokens": 4, "total_tokens": 4}
			}`,
			statusCode: 200,
			wantErr:    false,
		},
		{
			name:       "empty inputs",
			modelID:    OpenAISmall,
			inputs:     []string{},
			statusCode: 200,
			wantErr:    true,
		},
		{
			name:       "API error",
			modelID:    OpenAISmall,
			inputs:     []string{"test"},
			mockResp:   `{"error": {"message": "Invalid API key"}}`,
			statusCode: 401,
			wantErr:    true,
		},
		{
			name:    "missing embedding in response",
			modelID: OpenAISmall,
			inputs:  []string{"a", "b"},
			mockResp: `{
				"object": "list",
				"data": [
					{"object": "embedding", "index": 0, "embedding": [0.1, 0.2]}
				],
				"model": "text-embedding-3-small",
				"usage": {"prompt_tokens": 2, "total_tokens": 2}
			}`,
			statusCode: 200,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != "POST" {
					t.Errorf("Expected POST request, got %s", r.Method)
				}
				if r.Header.Get("Content-Type") != "application/json" {
					t.Errorf("Expected Content-Type: application/json, got %s", r.Header.Get("Content-Type"))
				}
				if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
					t.Errorf("Expected Authorization: Bearer test-key, got %s", got)
				}

				if tt.statusCode == 200 && !tt.wantErr {
					var req embeddingRequest
					if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
						t.Errorf("Failed to decode request body: %v", err)
					} else {
						if req.Model != tt.modelID {
							t.Errorf("Expected model %s, got %s", tt.modelID, req.Model)
						}
						if len(req.Input) != len(tt.inputs) {
							t.Errorf("Expected %d inputs, got %d", len(tt.inputs), len(req.Input))
						}
					}
				}

				w.WriteHeader(tt.statusCode)
				w.Write([]byte(tt.mockResp))
			}))
			defer server.Close()

			emb, err := NewOpenAI(tt.modelID, "test-key", server.Client())
			if err != nil {
				t.Fatalf("NewOpenAI() error = %v", err)
			}

			oldEndpoint := embeddingsEndpoint
			embeddingsEndpoint = server.URL
			defer func() { embeddingsEndpoint = oldEndpoint }()

			result, err := emb.Embed(context.Background(), tt.inputs)

			if (err != nil) != tt.wantErr {
				t.Errorf("Embed() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr {
				if result == nil {
					t.Error("Embed() returned nil result")
					return
				}
				if len(result.Vectors) != len(tt.inputs) {
					t.Errorf("Expected %d vectors, got %d", len(tt.inputs), len(result.Vectors))
				}
				for i, vec := range result.Vectors {
					if vec == nil {
						t.Errorf("Vector at index %d is nil", i)
					}
				}
				if result.Cost < 0 {
					t.Errorf("Cost is negative: %d", result.Cost)
				}
			}
		})
	}
}

func TestOpenAI_Embed_Batching(t *testing.T) {
	// Note: not running in parallel because we modify the global embeddingsEndpoint variable

	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++

		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request body: %v", err)
		}
		if len(req.Input) > BatchSize {
			t.Errorf("Batch of %d inputs exceeds BatchSize %d", len(req.Input), BatchSize)
		}

		// Echo back one vector per input so ordering can be verified
		// across batch boundaries.
		var data []string
		for i, input := range req.Input {
			var n int
			fmt.Sscanf(input, "input-%d", &n)
			data = append(data, fmt.Sprintf(`{"object": "embedding", "index": %d, "embedding": [%d]}`, i, n))
		}
		resp := fmt.Sprintf(`{
			"object": "list",
			"data": [%s],
			"model": "text-embedding-3-small",
			"usage": {"prompt_tokens": %d, "total_tokens": %d}
		}`, strings.Join(data, ","), len(req.Input), len(req.Input))

		w.WriteHeader(200)
		w.Write([]byte(resp))
	}))
	defer server.Close()

	emb, err := NewOpenAI(OpenAISmall, "test-key", server.Client())
	if err != nil {
		t.Fatalf("NewOpenAI() error = %v", err)
	}

	oldEndpoint := embeddingsEndpoint
	embeddingsEndpoint = server.URL
	defer func() { embeddingsEndpoint = oldEndpoint }()

	inputs := make([]string, BatchSize+50)
	for i := range inputs {
		inputs[i] = fmt.Sprintf("input-%d", i)
	}

	result, err := emb.Embed(context.Background(), inputs)
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}

	if requests != 2 {
		t.Errorf("Expected 2 batched requests, got %d", requests)
	}
	if len(result.Vectors) != len(inputs) {
		t.Fatalf("Expected %d vectors, got %d", len(inputs), len(result.Vectors))
	}
	for i, vec := range result.Vectors {
		if len(vec) != 1 || vec[0] != float64(i) {
			t.Errorf("Vector %d = %v, want [%d]", i, vec, i)
		}
	}
	if result.Cost != int64(len(inputs))*modelCosts[OpenAISmall] {
		t.Errorf("Cost = %d, want %d", result.Cost, int64(len(inputs))*modelCosts[OpenAISmall])
	}
}

func TestOpenAI_CostCalculation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		modelID      ModelID
		tokens       int64
		expectedCost int64
	}{
		{
			name:         "small model 1000 tokens",
			modelID:      OpenAISmall,
			tokens:       1000,
			expectedCost: 20000,
		},
		{
			name:         "small model 1M tokens",
			modelID:      OpenAISmall,
			tokens:       1_000_000,
			expectedCost: 20000000,
		},
		{
			name:         "large model 1000 tokens",
			modelID:      OpenAILarge,
			tokens:       1000,
			expectedCost: 130000,
		},
		{
			name:         "unknown model",
			modelID:      ModelID("made-up"),
			tokens:       1000,
			expectedCost: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb := &OpenAI{modelID: tt.modelID}
			if cost := emb.cost(tt.tokens); cost != tt.expectedCost {
				t.Errorf("cost() = %d, want %d", cost, tt.expectedCost)
			}
		})
	}
}

func TestOpenAI_InterfaceCompliance(t *testing.T) {
	t.Parallel()

	var _ Embedder = (*OpenAI)(nil)
}

func TestOpenAI_MissingKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	if _, err := NewOpenAI(OpenAISmall, "", nil); err == nil {
		t.Error("NewOpenAI() with no key should error")
	}
}
