package eval

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/54b3r/pdfrag/internal/rag"
)

// Defaults for Config.
const (
	DefaultRawDir     = "data/eval/raw"
	DefaultGold       = "data/eval/gold.csv"
	DefaultModels     = "data/eval/models.yaml"
	DefaultReportsDir = "data/eval/reports"
	DefaultIndexDir   = ".index-eval"
	DefaultK          = 5
	DefaultDumpK      = 10
)

// Config locates the eval inputs and outputs.
type Config struct {
	RawDir      string
	Gold        string
	Models      string
	ReportsDir  string
	IndexDir    string
	K           int
	SearchType  rag.SearchType
	IncludeTags []string
	Dump        bool
	DumpK       int
}

// ConfigFromEnv reads EVAL_* variables, falling back to the defaults above.
// Malformed numbers, booleans or search types wrap rag.ErrConfiguration.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		RawDir:     envOr("EVAL_RAW_DIR", DefaultRawDir),
		Gold:       envOr("EVAL_GOLD", DefaultGold),
		Models:     envOr("EVAL_MODELS", DefaultModels),
		ReportsDir: envOr("EVAL_REPORTS_DIR", DefaultReportsDir),
		IndexDir:   envOr("EVAL_INDEX_DIR", DefaultIndexDir),
		K:          DefaultK,
		SearchType: rag.SearchDiversity,
		DumpK:      DefaultDumpK,
	}

	var err error
	if cfg.K, err = envInt("EVAL_K", DefaultK); err != nil {
		return Config{}, err
	}
	if cfg.DumpK, err = envInt("EVAL_DUMP_K", DefaultDumpK); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("EVAL_SEARCH_TYPE"); v != "" {
		if cfg.SearchType, err = rag.ParseSearchType(v); err != nil {
			return Config{}, fmt.Errorf("eval: EVAL_SEARCH_TYPE: %w: %w", rag.ErrConfiguration, err)
		}
	}
	if v := os.Getenv("EVAL_DUMP"); v != "" {
		if cfg.Dump, err = strconv.ParseBool(v); err != nil {
			return Config{}, fmt.Errorf("eval: EVAL_DUMP=%q: %w", v, rag.ErrConfiguration)
		}
	}
	cfg.IncludeTags = SplitTags(os.Getenv("EVAL_INCLUDE_TAGS"))
	return cfg, nil
}

// SplitTags splits a comma list, dropping blanks.
func SplitTags(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("eval: %s=%q must be a positive integer: %w", key, v, rag.ErrConfiguration)
	}
	return n, nil
}
