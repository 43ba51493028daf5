package app

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/atlasnotes/conceptmap-backend/internal/pkg/envutil"
)

// Config collects every tunable of the pipeline. The numeric thresholds are
// deliberate defaults, not constants: the original design leaves them
// adjustable per deployment.
type Config struct {
	PipelineVersion string `yaml:"pipeline_version"`

	// Classifier
	DigitalPageRatio float64 `yaml:"digital_page_ratio"` // >= ratio of text pages -> digital
	ScannedPageRatio float64 `yaml:"scanned_page_ratio"` // <= ratio of text pages -> scanned
	MinPageTextRunes int     `yaml:"min_page_text_runes"`

	// Parser fallback chain
	StructuredMinConfidence float64       `yaml:"structured_min_confidence"`
	OCRMinConfidence        float64       `yaml:"ocr_min_confidence"`
	PlainTextConfidence     float64       `yaml:"plaintext_confidence"`
	ParseTimeout            time.Duration `yaml:"parse_timeout"`

	// Ensemble extraction
	MaxConceptsPerNode      int     `yaml:"max_concepts_per_node"`
	MinMethodsFound         int     `yaml:"min_methods_found"`
	DefinitionMinConfidence float64 `yaml:"definition_min_confidence"`
	MaxCandidatePhrases     int     `yaml:"max_candidate_phrases"`

	// Relationship detection
	NeighborTopK      int `yaml:"neighbor_top_k"`
	MinSameChapter    int `yaml:"min_same_chapter"`
	MaxContextTokens  int `yaml:"max_context_tokens"`
	SyntheticPageSpan int `yaml:"synthetic_page_span"`

	// Concurrency / retries
	NodeConcurrency    int           `yaml:"node_concurrency"`
	ConceptConcurrency int           `yaml:"concept_concurrency"`
	ExternalMaxRetries int           `yaml:"external_max_retries"`
	ExternalBackoff    time.Duration `yaml:"external_backoff"`

	// Cache
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// LoadConfig builds the config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		PipelineVersion: envutil.GetEnv("PIPELINE_VERSION", "v1"),

		DigitalPageRatio: envutil.GetEnvFloat("CLASSIFY_DIGITAL_RATIO", 0.9),
		ScannedPageRatio: envutil.GetEnvFloat("CLASSIFY_SCANNED_RATIO", 0.1),
		MinPageTextRunes: envutil.GetEnvInt("CLASSIFY_MIN_PAGE_RUNES", 32),

		StructuredMinConfidence: envutil.GetEnvFloat("PARSE_STRUCTURED_MIN_CONFIDENCE", 0.8),
		OCRMinConfidence:        envutil.GetEnvFloat("PARSE_OCR_MIN_CONFIDENCE", 0.6),
		PlainTextConfidence:     envutil.GetEnvFloat("PARSE_PLAINTEXT_CONFIDENCE", 0.6),
		ParseTimeout:            envutil.GetEnvDuration("PARSE_TIMEOUT", 2*time.Minute),

		MaxConceptsPerNode:      envutil.GetEnvInt("EXTRACT_MAX_CONCEPTS", 20),
		MinMethodsFound:         envutil.GetEnvInt("EXTRACT_MIN_METHODS", 2),
		DefinitionMinConfidence: envutil.GetEnvFloat("EXTRACT_DEFINITION_MIN_CONFIDENCE", 0.5),
		MaxCandidatePhrases:     envutil.GetEnvInt("EXTRACT_MAX_CANDIDATES", 120),

		NeighborTopK:      envutil.GetEnvInt("RELATE_TOP_K", 10),
		MinSameChapter:    envutil.GetEnvInt("RELATE_MIN_SAME_CHAPTER", 3),
		MaxContextTokens:  envutil.GetEnvInt("RELATE_MAX_CONTEXT_TOKENS", 2000),
		SyntheticPageSpan: envutil.GetEnvInt("HIERARCHY_SYNTHETIC_PAGE_SPAN", 5),

		NodeConcurrency:    envutil.GetEnvInt("PIPELINE_NODE_CONCURRENCY", 4),
		ConceptConcurrency: envutil.GetEnvInt("PIPELINE_CONCEPT_CONCURRENCY", 4),
		ExternalMaxRetries: envutil.GetEnvInt("EXTERNAL_MAX_RETRIES", 3),
		ExternalBackoff:    envutil.GetEnvDuration("EXTERNAL_BACKOFF", time.Second),

		CacheTTL: envutil.GetEnvDuration("RESULT_CACHE_TTL", 30*24*time.Hour),
	}
}

// LoadConfigFile overlays a YAML file (when path is non-empty) on top of the
// env-derived config. Zero values in the file keep the env/default value.
func LoadConfigFile(path string) (Config, error) {
	cfg := LoadConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	var overlay Config
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}
	mergeConfig(&cfg, overlay)
	return cfg, nil
}

func mergeConfig(dst *Config, src Config) {
	if src.PipelineVersion != "" {
		dst.PipelineVersion = src.PipelineVersion
	}
	if src.DigitalPageRatio > 0 {
		dst.DigitalPageRatio = src.DigitalPageRatio
	}
	if src.ScannedPageRatio > 0 {
		dst.ScannedPageRatio = src.ScannedPageRatio
	}
	if src.MinPageTextRunes > 0 {
		dst.MinPageTextRunes = src.MinPageTextRunes
	}
	if src.StructuredMinConfidence > 0 {
		dst.StructuredMinConfidence = src.StructuredMinConfidence
	}
	if src.OCRMinConfidence > 0 {
		dst.OCRMinConfidence = src.OCRMinConfidence
	}
	if src.PlainTextConfidence > 0 {
		dst.PlainTextConfidence = src.PlainTextConfidence
	}
	if src.ParseTimeout > 0 {
		dst.ParseTimeout = src.ParseTimeout
	}
	if src.MaxConceptsPerNode > 0 {
		dst.MaxConceptsPerNode = src.MaxConceptsPerNode
	}
	if src.MinMethodsFound > 0 {
		dst.MinMethodsFound = src.MinMethodsFound
	}
	if src.DefinitionMinConfidence > 0 {
		dst.DefinitionMinConfidence = src.DefinitionMinConfidence
	}
	if src.MaxCandidatePhrases > 0 {
		dst.MaxCandidatePhrases = src.MaxCandidatePhrases
	}
	if src.NeighborTopK > 0 {
		dst.NeighborTopK = src.NeighborTopK
	}
	if src.MinSameChapter > 0 {
		dst.MinSameChapter = src.MinSameChapter
	}
	if src.MaxContextTokens > 0 {
		dst.MaxContextTokens = src.MaxContextTokens
	}
	if src.SyntheticPageSpan > 0 {
		dst.SyntheticPageSpan = src.SyntheticPageSpan
	}
	if src.NodeConcurrency > 0 {
		dst.NodeConcurrency = src.NodeConcurrency
	}
	if src.ConceptConcurrency > 0 {
		dst.ConceptConcurrency = src.ConceptConcurrency
	}
	if src.ExternalMaxRetries > 0 {
		dst.ExternalMaxRetries = src.ExternalMaxRetries
	}
	if src.ExternalBackoff > 0 {
		dst.ExternalBackoff = src.ExternalBackoff
	}
	if src.CacheTTL > 0 {
		dst.CacheTTL = src.CacheTTL
	}
}
