package model

import (
	"runtime"
	"time"
)

// Config holds every tunable of a shockeval run
type Config struct {
	Chunking    ChunkingConfig    `yaml:"chunking" mapstructure:"chunking"`
	Matching    MatchingConfig    `yaml:"matching" mapstructure:"matching"`
	Sampling    SamplingConfig    `yaml:"sampling" mapstructure:"sampling"`
	Consistency ConsistencyConfig `yaml:"consistency" mapstructure:"consistency"`
	LOOCV       LOOCVConfig       `yaml:"loocv" mapstructure:"loocv"`
	Evaluation  EvaluationConfig  `yaml:"evaluation" mapstructure:"evaluation"`
	Behavioral  BehavioralConfig  `yaml:"behavioral" mapstructure:"behavioral"`
	LLM         LLMConfig         `yaml:"llm" mapstructure:"llm"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Source      SourceConfig      `yaml:"source" mapstructure:"source"`
	Output      OutputConfig      `yaml:"output" mapstructure:"output"`
}

// ChunkingConfig controls page windows. Sizes are page counts.
type ChunkingConfig struct {
	WindowSize int `yaml:"window_size" mapstructure:"window_size"`
	Overlap    int `yaml:"overlap" mapstructure:"overlap"`
	MaxTokens  int `yaml:"max_tokens" mapstructure:"max_tokens"` // Advisory ceiling, logged when exceeded
}

// MatchingConfig controls the chunk/event matcher
type MatchingConfig struct {
	MinPassageChars    int      `yaml:"min_passage_chars" mapstructure:"min_passage_chars"`
	MinComponentWords  int      `yaml:"min_component_words" mapstructure:"min_component_words"`
	MinCooccurringSets int      `yaml:"min_cooccurring_sets" mapstructure:"min_cooccurring_sets"`
	FuzzyNameThreshold float64  `yaml:"fuzzy_name_threshold" mapstructure:"fuzzy_name_threshold"` // 0 disables
	DomainKeywords     []string `yaml:"domain_keywords" mapstructure:"domain_keywords"`
	GenericTerms       []string `yaml:"generic_terms" mapstructure:"generic_terms"`
	Workers            int      `yaml:"workers" mapstructure:"workers"`
}

// SamplingConfig controls few-shot example selection
type SamplingConfig struct {
	NPerClass            int     `yaml:"n_per_class" mapstructure:"n_per_class"`
	Strategy             string  `yaml:"strategy" mapstructure:"strategy"` // "stratified" or "edge_case"
	HardNegativeFraction float64 `yaml:"hard_negative_fraction" mapstructure:"hard_negative_fraction"`
	NegativeLabel        string  `yaml:"negative_label" mapstructure:"negative_label"`
	RequireNegativeLabel bool    `yaml:"require_negative_label" mapstructure:"require_negative_label"` // Fail instead of omitting negatives when the codebook lacks NegativeLabel
	MaxExampleTokens     int     `yaml:"max_example_tokens" mapstructure:"max_example_tokens"`         // Negative examples are cut to their densest excerpt of this size
}

// ConsistencyConfig controls self-consistency sampling
type ConsistencyConfig struct {
	Samples     int     `yaml:"samples" mapstructure:"samples"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
}

// LOOCVConfig controls the cross-validation harness
type LOOCVConfig struct {
	NFewShot        int           `yaml:"n_few_shot" mapstructure:"n_few_shot"`
	Seed            uint64        `yaml:"seed" mapstructure:"seed"`
	MaxRetries      int           `yaml:"max_retries" mapstructure:"max_retries"`
	BaseBackoff     time.Duration `yaml:"base_backoff" mapstructure:"base_backoff"`
	FoldConcurrency int           `yaml:"fold_concurrency" mapstructure:"fold_concurrency"`
}

// EvaluationConfig controls metrics and bootstrap resampling
type EvaluationConfig struct {
	Bootstrap       int     `yaml:"bootstrap" mapstructure:"bootstrap"`
	MinResamples    int     `yaml:"min_resamples" mapstructure:"min_resamples"`
	MinObservations int     `yaml:"min_observations" mapstructure:"min_observations"`
	PositiveLabel   string  `yaml:"positive_label" mapstructure:"positive_label"` // Empty means macro averaging
	Confidence      float64 `yaml:"confidence" mapstructure:"confidence"`
}

// BehavioralConfig controls the behavioral probes
type BehavioralConfig struct {
	Samples          int     `yaml:"samples" mapstructure:"samples"`
	Temperature      float64 `yaml:"temperature" mapstructure:"temperature"` // 0 with several samples uses consistency.temperature
	MaxOrderChange   float64 `yaml:"max_order_change" mapstructure:"max_order_change"`
	MinKappa         float64 `yaml:"min_kappa" mapstructure:"min_kappa"`
	MaxLabelDrop     float64 `yaml:"max_label_drop" mapstructure:"max_label_drop"`
	TriggerToken     string  `yaml:"trigger_token" mapstructure:"trigger_token"`
	ShuffleSeed      uint64  `yaml:"shuffle_seed" mapstructure:"shuffle_seed"`
	ExclusionDefault string  `yaml:"exclusion_default" mapstructure:"exclusion_default"` // Label an excluded text should receive
}

// LLMConfig configures the classifier provider and its gateway
type LLMConfig struct {
	Provider          string  `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama, gemini
	Model             string  `yaml:"model" mapstructure:"model"`
	APIKey            string  `yaml:"-" mapstructure:"api_key"`
	BaseURL           string  `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout           int     `yaml:"timeout" mapstructure:"timeout"` // seconds, per call
	MaxTokens         int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
	MaxConcurrent     int     `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	HTTPProxy         string  `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy        string  `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy           string  `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// CacheConfig configures the artifact store
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// SourceConfig selects where documents are read from
type SourceConfig struct {
	Kind     string `yaml:"kind" mapstructure:"kind"` // "disk", "s3" or "http"
	Dir      string `yaml:"dir" mapstructure:"dir"`
	Bucket   string `yaml:"bucket,omitempty" mapstructure:"bucket"`
	Prefix   string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	Region   string `yaml:"region,omitempty" mapstructure:"region"`
	Endpoint string `yaml:"endpoint,omitempty" mapstructure:"endpoint"`
	URL      string `yaml:"url,omitempty" mapstructure:"url"` // Base URL for the http source

	HTTPProxy  string `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy    string `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`

	// Static credentials; the default AWS chain is used when empty
	AccessKey string `yaml:"-" mapstructure:"access_key"`
	SecretKey string `yaml:"-" mapstructure:"secret_key"`
}

// OutputConfig controls rendered artifacts
type OutputConfig struct {
	Dir     string `yaml:"dir" mapstructure:"dir"`
	Verbose bool   `yaml:"verbose" mapstructure:"verbose"`
}

// DefaultConfig returns the defaults used when nothing else is configured
func DefaultConfig() *Config {
	return &Config{
		Chunking: ChunkingConfig{
			WindowSize: 50,
			Overlap:    10,
			MaxTokens:  40000,
		},
		Matching: MatchingConfig{
			MinPassageChars:    15,
			MinComponentWords:  3,
			MinCooccurringSets: 2,
			DomainKeywords: []string{
				"tax", "taxes", "revenue", "revenues", "deficit", "budget", "fiscal",
				"spending", "expenditure", "expenditures", "legislation", "act", "bill",
				"appropriation", "appropriations", "receipts", "outlays", "liabilities",
				"withholding", "surtax", "tax cut", "tax increase", "tax reduction",
			},
			GenericTerms: []string{
				"tax", "taxes", "budget", "act", "bill", "revenue", "spending", "law",
				"congress", "fiscal", "economy", "government",
			},
			Workers: runtime.NumCPU(),
		},
		Sampling: SamplingConfig{
			NPerClass:            2,
			Strategy:             "edge_case",
			HardNegativeFraction: 0.7,
			NegativeLabel:        "NONE",
			MaxExampleTokens:     400,
		},
		Consistency: ConsistencyConfig{
			Samples:     5,
			Temperature: 0.7,
		},
		LOOCV: LOOCVConfig{
			NFewShot:        2,
			Seed:            20100601,
			MaxRetries:      3,
			BaseBackoff:     time.Second,
			FoldConcurrency: 4,
		},
		Evaluation: EvaluationConfig{
			Bootstrap:       1000,
			MinResamples:    100,
			MinObservations: 10,
			Confidence:      0.95,
		},
		Behavioral: BehavioralConfig{
			Samples:        1,
			MaxOrderChange: 0.05,
			MinKappa:       0.8,
			MaxLabelDrop:   0.10,
			TriggerToken:   "ZQXJ-TRIGGER",
			ShuffleSeed:    7,
		},
		LLM: LLMConfig{
			Provider:          "",
			Timeout:           60,
			MaxTokens:         1024,
			RequestsPerSecond: 2,
			Burst:             2,
			MaxConcurrent:     4,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".shockeval/cache",
			MemoryTTL: 30 * time.Minute,
			DiskTTL:   30 * 24 * time.Hour,
		},
		Source: SourceConfig{
			Kind: "disk",
			Dir:  "data/extracted",
		},
		Output: OutputConfig{
			Dir: "shockeval-results",
		},
	}
}
