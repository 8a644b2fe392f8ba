// knowledgetree/internal/config/config.go

package config

import (
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pterm/pterm"
	"gopkg.in/yaml.v2"
)

type ServiceConfig struct {
	Name      string   `yaml:"name"`
	Host      string   `yaml:"host"`
	Port      int      `yaml:"port"`
	Command   string   `yaml:"command"`
	GPULayers string   `yaml:"gpu_layers,omitempty"`
	Args      []string `yaml:"args,omitempty"`
	Model     string   `yaml:"model,omitempty"`
}

type ToolConfig struct {
	Name       string                 `yaml:"name"`
	Parameters map[string]interface{} `yaml:"parameters"`
}

type DatabaseConfig struct {
	ConnectionString string `yaml:"connection_string"`
}

type ReactAgentConfig struct {
	MaxSteps int  `yaml:"max_steps"`
	Memory   bool `yaml:"memory"`
	NumTools int  `yaml:"num_tools"`
}

type FleetWorker struct {
	Name         string  `json:"name"`
	Model        string  `json:"model,omitempty"`
	Role         string  `json:"role"`
	Endpoint     string  `json:"endpoint"`
	CtxSize      int     `json:"ctx_size"`
	Temperature  float64 `json:"temperature"`
	ApiKey       string  `json:"api_key,omitempty"`
	Instructions string  `json:"instructions"`
	MaxSteps     int     `json:"max_steps"`
	Memory       bool    `json:"memory"`
}

type AgentFleet struct {
	Workers []FleetWorker `json:"workers"`
}

type AgenticMemoryConfig struct {
	Enabled bool `yaml:"enabled"`
}

// A2AConfig defines settings for the Agent2Agent protocol.
type A2AConfig struct {
	// Role specifies the node's role in the cluster ("master" or "worker").
	Role string `yaml:"role"`
	// Token is the shared secret used for authenticating A2A requests.
	Token string `yaml:"token"`
	// Nodes lists the URLs of remote nodes participating in the cluster.
	Nodes []string `yaml:"nodes"`
}

type CompletionsConfig struct {
	DefaultHost      string           `yaml:"default_host"`
	SummaryHost      string           `yaml:"summary_host,omitempty"`
	KeywordsHost     string           `yaml:"keywords_host,omitempty"`
	Backend          string           `yaml:"backend"` // e.g., "openai", "llamacpp", "mlx"
	CompletionsModel string           `yaml:"completions_model"`
	Temperature      float64          `yaml:"temperature"`
	CtxSize          int              `yaml:"ctx_size"`
	APIKey           string           `yaml:"api_key"`
	ReactAgentConfig ReactAgentConfig `yaml:"agent"`
}

type EmbeddingsConfig struct {
	Host         string `yaml:"host"`
	APIKey       string `yaml:"api_key"`
	Model        string `yaml:"model"`
	Dimensions   int    `yaml:"dimensions"`
	EmbedPrefix  string `yaml:"embed_prefix"`
	SearchPrefix string `yaml:"search_prefix"`
}

type RerankerConfig struct {
	Host               string  `yaml:"host"`
	MinScore           float64 `yaml:"min_cross_encoder_score"`
}

// OpenAIConfig configures internal/llm/openai's Client, the default
// chat/completion backend for the RAG assembler, the agentic crawler, and
// the engine selector's LLM tie-breaker.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url,omitempty"`
}

// AnthropicPromptCacheConfig mirrors internal/llm/anthropic's cache-control
// knobs for the Claude prompt-caching beta.
type AnthropicPromptCacheConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`
}

// AnthropicConfig configures internal/llm/anthropic's Client, an
// alternative chat backend selectable via LLMProvider.
type AnthropicConfig struct {
	APIKey      string                     `yaml:"api_key"`
	Model       string                     `yaml:"model"`
	BaseURL     string                     `yaml:"base_url,omitempty"`
	ExtraParams map[string]any             `yaml:"extra_params,omitempty"`
	PromptCache AnthropicPromptCacheConfig `yaml:"prompt_cache,omitempty"`
}

// RetrievalConfig tunes the hybrid retrieval pipeline: RRF weights,
// reranking-optimizer thresholds, and the recency-boost weight.
type RetrievalConfig struct {
	DenseWeight       float64 `yaml:"dense_weight"`
	SparseWeight      float64 `yaml:"sparse_weight"`
	RRFK              int     `yaml:"rrf_k"`
	RecencyWeight     float64 `yaml:"recency_weight"`
	OptimizerTop1Min  float64 `yaml:"optimizer_top1_min"`
	OptimizerGapMin   float64 `yaml:"optimizer_gap_min"`
	OptimizerStdDevMax float64 `yaml:"optimizer_stddev_max"`
}

// BM25Config fixes the classical BM25 scoring constants.
type BM25Config struct {
	K1 float64 `yaml:"k1"`
	B  float64 `yaml:"b"`
}

// ScrapeConfig configures the three scraping engines and the engine
// selector's managed-remote availability.
type ScrapeConfig struct {
	ManagedAPIKey    string        `yaml:"managed_api_key,omitempty"`
	ManagedEndpoint  string        `yaml:"managed_endpoint,omitempty"`
	ChromeBinary     string        `yaml:"chrome_binary,omitempty"`
	PolitenessDelayMS int          `yaml:"politeness_delay_ms"`
	VisionQuota      float64       `yaml:"vision_quota"`
	VisionQuotaEps   float64       `yaml:"vision_quota_epsilon"`
}

// CRAGConfig tunes the corrective-RAG evaluator's confidence thresholds.
type CRAGConfig struct {
	HighConfidenceMin   float64 `yaml:"high_confidence_min"`
	MediumConfidenceMin float64 `yaml:"medium_confidence_min"`
	LowConfidenceMin    float64 `yaml:"low_confidence_min"`
}

type AuthConfig struct {
	SecretKey   string `yaml:"secret_key"`
	TokenExpiry int    `yaml:"token_expiry"` // Token expiry in hours
}

type WebSearchToolConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Backend    string `yaml:"backend"`            // e.g., "serpapi", "bing"
	Endpoint   string `yaml:"endpoint,omniempty"` // API endpoint for the search service
	ResultSize int    `yaml:"result_size"`        // Number of results to fetch
}

type IngestionConfig struct {
	MaxWorkers  int  `yaml:"max_workers"`
	UseAdvanced bool `yaml:"use_advanced_splitting"`
}

// RedisConfig configures the progress-event pub/sub backend used by
// the ingestion job queue.
type RedisConfig struct {
	Enabled               bool   `yaml:"enabled"`
	Addr                  string `yaml:"addr"`
	Password              string `yaml:"password,omitempty"`
	DB                    int    `yaml:"db"`
	TLSInsecureSkipVerify bool   `yaml:"tls_insecure_skip_verify,omitempty"`
}

// KafkaConfig configures the ingestion job queue's command topic.
type KafkaConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Brokers     []string `yaml:"brokers"`
	GroupID     string   `yaml:"group_id"`
	JobsTopic   string   `yaml:"jobs_topic"`
	WorkerCount int      `yaml:"worker_count"`
}

type ToolsConfig struct {
	Search WebSearchToolConfig
}

// TelemetryConfig controls OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

type Config struct {
	Host                      string              `yaml:"host"`
	Port                      int                 `yaml:"port"`
	DataPath                  string              `yaml:"data_path"`
	SingleNodeInstance        bool                `yaml:"single_node_instance,omitempty"`
	GitHubPersonalAccessToken string              `yaml:"github_personal_access_token"`
	AnthropicKey              string              `yaml:"anthropic_key,omitempty"`
	OpenAIAPIKey              string              `yaml:"openai_api_key,omitempty"`
	GoogleGeminiKey           string              `yaml:"google_gemini_key,omitempty"`
	HuggingFaceToken          string              `yaml:"hf_token,omitempty"`
	Database                  DatabaseConfig      `yaml:"database"`
	DBPool                    *pgxpool.Pool       `yaml:"-"` // PgxPool is not serialized, used for database connections
	Completions               CompletionsConfig   `yaml:"completions"`
	Embeddings                EmbeddingsConfig    `yaml:"embeddings"`
	Reranker                  RerankerConfig      `yaml:"reranker"`
	LLMProvider               string              `yaml:"llm_provider,omitempty"` // "openai" (default) or "anthropic"
	OpenAI                    OpenAIConfig        `yaml:"openai,omitempty"`
	Anthropic                 AnthropicConfig     `yaml:"anthropic,omitempty"`
	Auth                      AuthConfig          `yaml:"auth"`
	AgentFleet                AgentFleet          `yaml:"agent_fleet,omitempty"`
	AgenticMemory             AgenticMemoryConfig `yaml:"agentic_memory"`
	A2A                       A2AConfig           `yaml:"a2a,omitempty"`
	Tools                     ToolsConfig         `yaml:"tools,omitempty"`
	OTel                      TelemetryConfig     `yaml:"otel"`
	Ingestion                 IngestionConfig     `yaml:"ingestion"`
	Retrieval                 RetrievalConfig     `yaml:"retrieval"`
	BM25                      BM25Config          `yaml:"bm25"`
	Scrape                    ScrapeConfig        `yaml:"scrape"`
	CRAG                      CRAGConfig          `yaml:"crag"`
	Redis                     RedisConfig         `yaml:"redis"`
	Kafka                     KafkaConfig         `yaml:"kafka"`
}

// LoadConfig reads the configuration from a YAML file, unmarshals it into a Config struct,
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		pterm.Error.Printf("Error reading config file: %v\n", err)
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		pterm.Error.Printf("Error unmarshaling config: %v\n", err)
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Set default values for Auth if not provided
	if config.Auth.SecretKey == "" {
		config.Auth.SecretKey = "your-secret-key" // Default fallback (should be changed in production)
		pterm.Warning.Println("No JWT secret key provided in config, using default (insecure).")
	}

	if config.Auth.TokenExpiry <= 0 {
		config.Auth.TokenExpiry = 72 // Default to 72 hours
		pterm.Info.Println("No token expiry specified, using default (72 hours).")
	}

	// Set default values for Ingestion if not provided
	if config.Ingestion.MaxWorkers <= 0 {
		config.Ingestion.MaxWorkers = 4 // Default to 4 workers
		pterm.Info.Println("No max_workers specified for ingestion, using default (4).")
	}

	// Default to using advanced splitting for better code structure awareness
	if !config.Ingestion.UseAdvanced {
		config.Ingestion.UseAdvanced = true
		pterm.Info.Println("Advanced splitting enabled by default for better code structure preservation.")
	}

	if config.OTel.ServiceName == "" {
		config.OTel.ServiceName = "knowledgetree"
	}

	applyRetrievalDefaults(&config.Retrieval)
	applyBM25Defaults(&config.BM25)
	applyScrapeDefaults(&config.Scrape)
	applyCRAGDefaults(&config.CRAG)
	applyKafkaDefaults(&config.Kafka)

	pterm.Success.Println("Configuration loaded successfully.")
	return &config, nil
}

// applyRetrievalDefaults fills RRF weights (0.6/0.4), k=60, and the
// reranking-optimizer/recency-boost constants resolved in SPEC_FULL.md's
// Open Question section when the config file leaves them unset.
func applyRetrievalDefaults(r *RetrievalConfig) {
	if r.DenseWeight <= 0 && r.SparseWeight <= 0 {
		r.DenseWeight = 0.6
		r.SparseWeight = 0.4
	}
	if r.RRFK <= 0 {
		r.RRFK = 60
	}
	if r.RecencyWeight <= 0 {
		r.RecencyWeight = 0.1
	}
	if r.OptimizerTop1Min <= 0 {
		r.OptimizerTop1Min = 0.7
	}
	if r.OptimizerGapMin <= 0 {
		r.OptimizerGapMin = 0.15
	}
	if r.OptimizerStdDevMax <= 0 {
		r.OptimizerStdDevMax = 0.05
	}
}

func applyBM25Defaults(b *BM25Config) {
	if b.K1 <= 0 {
		b.K1 = 1.2
	}
	if b.B <= 0 {
		b.B = 0.75
	}
}

func applyScrapeDefaults(s *ScrapeConfig) {
	if s.PolitenessDelayMS <= 0 {
		s.PolitenessDelayMS = 1000
	}
	if s.VisionQuota <= 0 {
		s.VisionQuota = 0.30
	}
	if s.VisionQuotaEps <= 0 {
		s.VisionQuotaEps = 0.05
	}
}

func applyKafkaDefaults(k *KafkaConfig) {
	if k.JobsTopic == "" {
		k.JobsTopic = "knowledgetree.ingestion.jobs"
	}
	if k.GroupID == "" {
		k.GroupID = "knowledgetree-ingestion"
	}
	if k.WorkerCount <= 0 {
		k.WorkerCount = 4
	}
}

func applyCRAGDefaults(c *CRAGConfig) {
	if c.HighConfidenceMin <= 0 {
		c.HighConfidenceMin = 0.75
	}
	if c.MediumConfidenceMin <= 0 {
		c.MediumConfidenceMin = 0.5
	}
	if c.LowConfidenceMin <= 0 {
		c.LowConfidenceMin = 0.25
	}
}
