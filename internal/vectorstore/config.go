package vectorstore

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/54b3r/pdfrag/internal/rag"
)

// Backend identifies a vector index implementation.
type Backend string

// Supported vector index backends.
const (
	// BackendSQLite stores vectors in a local SQLite file and searches in-process.
	BackendSQLite Backend = "sqlite"
	// BackendQdrant stores vectors in a Qdrant server.
	BackendQdrant Backend = "qdrant"
)

// Defaults for the vector index.
const (
	DefaultDir        = ".index"
	DefaultCollection = "documents"
	// DefaultFetchK is the candidate pool size for diversity search.
	DefaultFetchK = 20
	// DefaultLambda weighs relevance against diversity in MMR.
	DefaultLambda = 0.5

	defaultQdrantHost = "localhost"
	defaultQdrantPort = 6334
)

// ParseBackend converts a provider name into a Backend. Empty selects sqlite.
func ParseBackend(s string) (Backend, error) {
	switch Backend(strings.ToLower(strings.TrimSpace(s))) {
	case "", BackendSQLite:
		return BackendSQLite, nil
	case BackendQdrant:
		return BackendQdrant, nil
	default:
		return "", fmt.Errorf("vectorstore: unknown provider %q (valid: sqlite, qdrant): %w", s, rag.ErrConfiguration)
	}
}

// Config identifies a collection and the backend that holds it.
type Config struct {
	// Backend selects the storage implementation.
	Backend Backend
	// Dir is the persist directory (sqlite backend).
	Dir string
	// Collection is the collection name.
	Collection string
	// Qdrant holds connection settings for the qdrant backend.
	Qdrant QdrantConfig
	// FetchK is the diversity-search candidate pool size. Zero selects DefaultFetchK.
	FetchK int
	// Lambda is the MMR relevance weight in [0,1]. Zero selects DefaultLambda.
	Lambda float64
}

// QdrantConfig holds connection parameters for a Qdrant server.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string
	// Port is the Qdrant gRPC port (default: 6334).
	Port int
	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string
	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
	// VectorSize sizes newly created collections. Zero uses the length of the
	// first vector added.
	VectorSize uint64
}

// ConfigFromEnv builds a Config from VECTOR_STORE_* and QDRANT_* variables.
func ConfigFromEnv() (Config, error) {
	backend, err := ParseBackend(os.Getenv("VECTOR_STORE_PROVIDER"))
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Backend:    backend,
		Dir:        os.Getenv("VECTOR_STORE_DIR"),
		Collection: os.Getenv("VECTOR_STORE_COLLECTION"),
		Qdrant: QdrantConfig{
			Host:   os.Getenv("QDRANT_HOST"),
			APIKey: os.Getenv("QDRANT_API_KEY"),
		},
	}
	if v := os.Getenv("QDRANT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("vectorstore: QDRANT_PORT must be an integer, got %q: %w", v, rag.ErrConfiguration)
		}
		cfg.Qdrant.Port = port
	}
	if v := os.Getenv("QDRANT_TLS"); v != "" {
		tls, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("vectorstore: QDRANT_TLS must be a boolean, got %q: %w", v, rag.ErrConfiguration)
		}
		cfg.Qdrant.UseTLS = tls
	}
	return cfg.withDefaults(), nil
}

func (c Config) withDefaults() Config {
	if c.Backend == "" {
		c.Backend = BackendSQLite
	}
	if c.Dir == "" {
		c.Dir = DefaultDir
	}
	if c.Collection == "" {
		c.Collection = DefaultCollection
	}
	if c.FetchK == 0 {
		c.FetchK = DefaultFetchK
	}
	if c.Lambda == 0 {
		c.Lambda = DefaultLambda
	}
	if c.Qdrant.Host == "" {
		c.Qdrant.Host = defaultQdrantHost
	}
	if c.Qdrant.Port == 0 {
		c.Qdrant.Port = defaultQdrantPort
	}
	return c
}

// Validate reports a config that cannot be opened.
func (c Config) Validate() error {
	if _, err := ParseBackend(string(c.Backend)); err != nil {
		return err
	}
	if strings.TrimSpace(c.Collection) == "" {
		return fmt.Errorf("vectorstore: collection name is required: %w", rag.ErrConfiguration)
	}
	if c.FetchK < 1 {
		return fmt.Errorf("vectorstore: fetch_k must be positive, got %d: %w", c.FetchK, rag.ErrConfiguration)
	}
	if c.Lambda < 0 || c.Lambda > 1 {
		return fmt.Errorf("vectorstore: lambda must be in [0,1], got %g: %w", c.Lambda, rag.ErrConfiguration)
	}
	if c.Backend == BackendQdrant && (c.Qdrant.Port < 1 || c.Qdrant.Port > 65535) {
		return fmt.Errorf("vectorstore: invalid qdrant port %d: %w", c.Qdrant.Port, rag.ErrConfiguration)
	}
	return nil
}
