package eval

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/54b3r/pdfrag/internal/embedder"
	"github.com/54b3r/pdfrag/internal/rag"
)

// Candidate is one embedding model under evaluation.
type Candidate struct {
	// Tag names the candidate and its collection (eval_<tag>).
	Tag string `yaml:"tag"`
	// Provider is the embedding backend name.
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// BaseURL overrides the backend endpoint.
	BaseURL string `yaml:"base_url"`
	// Dimensions overrides the vector length.
	Dimensions int `yaml:"dimensions"`
	// APIKey authenticates hosted providers. Usually left empty so the
	// provider's environment variable applies.
	APIKey string `yaml:"api_key"`
}

// DefaultCandidates are used when no candidates file exists. The two fake
// models embed into different spaces, so their metrics differ.
func DefaultCandidates() []Candidate {
	return []Candidate{
		{Tag: "fake-a", Provider: string(embedder.BackendFake), Model: "fake-a"},
		{Tag: "fake-b", Provider: string(embedder.BackendFake), Model: "fake-b"},
	}
}

// LoadCandidates reads a YAML list of candidates. A missing file yields
// DefaultCandidates. Unknown providers and duplicate or empty tags wrap
// rag.ErrConfiguration.
func LoadCandidates(path string) ([]Candidate, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultCandidates(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("eval: read candidates %s: %w: %w", path, rag.ErrLoad, err)
	}

	var cands []Candidate
	if err := yaml.Unmarshal(data, &cands); err != nil {
		return nil, fmt.Errorf("eval: parse candidates %s: %w: %w", path, rag.ErrConfiguration, err)
	}
	seen := make(map[string]bool)
	for _, c := range cands {
		if strings.TrimSpace(c.Tag) == "" {
			return nil, fmt.Errorf("eval: candidate without tag in %s: %w", path, rag.ErrConfiguration)
		}
		if seen[c.Tag] {
			return nil, fmt.Errorf("eval: duplicate candidate tag %q: %w", c.Tag, rag.ErrConfiguration)
		}
		seen[c.Tag] = true
		if _, err := embedder.ParseBackend(c.Provider); err != nil {
			return nil, fmt.Errorf("eval: candidate %q: %w", c.Tag, err)
		}
	}
	return cands, nil
}

// FilterTags keeps the candidates whose tag is in tags. An empty tags list
// keeps everything.
func FilterTags(cands []Candidate, tags []string) []Candidate {
	if len(tags) == 0 {
		return cands
	}
	want := make(map[string]bool, len(tags))
	for _, t := range tags {
		want[strings.TrimSpace(t)] = true
	}
	var out []Candidate
	for _, c := range cands {
		if want[c.Tag] {
			out = append(out, c)
		}
	}
	return out
}

// EmbedderConfig converts c into an embedder Config. Credentials not set on
// the candidate are taken from the provider's environment variables.
func (c Candidate) EmbedderConfig() (embedder.Config, error) {
	backend, err := embedder.ParseBackend(c.Provider)
	if err != nil {
		return embedder.Config{}, err
	}
	cfg := embedder.Config{
		Backend:    backend,
		Model:      c.Model,
		Dimensions: c.Dimensions,
		APIKey:     c.APIKey,
		Endpoint:   c.BaseURL,
	}
	if cfg.APIKey == "" {
		switch backend {
		case embedder.BackendOpenAI:
			cfg.APIKey = os.Getenv("OPENAI_API_KEY")
		case embedder.BackendAzure:
			cfg.APIKey = os.Getenv("AZURE_OPENAI_API_KEY")
		case embedder.BackendGemini:
			cfg.APIKey = os.Getenv("GOOGLE_API_KEY")
		}
	}
	if cfg.Endpoint == "" {
		switch backend {
		case embedder.BackendOllama:
			cfg.Endpoint = os.Getenv("OLLAMA_HOST")
		case embedder.BackendAzure:
			cfg.Endpoint = os.Getenv("AZURE_OPENAI_ENDPOINT")
		}
	}
	return cfg, nil
}
