// Package ollama provides an Ollama-backed embedding provider.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
	"github.com/recallkit/memoryd/memory"
)

// Model is an Ollama embedding model name.
type Model string

const (
	// ModelBGEM3 is the default embedding model (1024 dimensions).
	ModelBGEM3 Model = "bge-m3"
	// ModelMXBAI is an alternative embedding model (1024 dimensions).
	ModelMXBAI Model = "mxbai-embed-large"
)

type embedder struct {
	client     *api.Client
	model      Model
	dimensions int
}

// NewEmbedder creates an Embedder backed by a local Ollama server. An empty
// host falls back to the OLLAMA_HOST environment or the Ollama default.
func NewEmbedder(host string, model Model, dimensions int) (memory.Embedder, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("ollama embedder: dimensions must be positive")
	}

	var cli *api.Client
	if host == "" {
		var err error
		cli, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama embedder: %w", err)
		}
	} else {
		base, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("ollama embedder: parse host: %w", err)
		}
		cli = api.NewClient(base, http.DefaultClient)
	}

	return &embedder{client: cli, model: model, dimensions: dimensions}, nil
}

func (e *embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{
		Model: string(e.model),
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama returned no embeddings")
	}
	return resp.Embeddings[0], nil
}

func (e *embedder) Dimensions() int { return e.dimensions }
