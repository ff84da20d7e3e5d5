package steps

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/veridoc/veridoc-backend/internal/pkg/envutil"
	"github.com/veridoc/veridoc-backend/internal/pkg/logger"
)

// Config carries every retrieval tuning knob. Defaults are the shipped
// values; a YAML file named by VERIDOC_CONFIG overrides them, and a handful
// of env vars override the file for quick operational tuning.
type Config struct {
	// Hybrid retriever.
	RRFC      int `yaml:"rrf_c"`
	KVector   int `yaml:"k_vector"`
	KBM25     int `yaml:"k_bm25"`
	KOut      int `yaml:"k_out"`
	MaxPerDoc int `yaml:"max_per_doc"`
	MinDocs   int `yaml:"min_docs"`

	// Community matcher.
	CommunityTopK     int     `yaml:"community_top_k"`
	CommunityMinScore float64 `yaml:"community_min_score"`

	// Hub-entity extractor.
	HubsPerCommunity int `yaml:"hubs_per_community"`

	// Five-path trace.
	Damping   float64 `yaml:"damping"`
	SimWeight float64 `yaml:"sim_weight"`
	HubWeight float64 `yaml:"hub_weight"`

	// Mentions expander.
	MaxChunksPerEntity    int `yaml:"max_chunks_per_entity"`
	MentionsMaxPerSection int `yaml:"mentions_max_per_section"`
	MentionsMaxPerDoc     int `yaml:"mentions_max_per_doc"`

	// Beam walker.
	BeamWidth int `yaml:"beam_width"`
	MaxHops   int `yaml:"max_hops"`

	// Distiller.
	RerankWeight            float64 `yaml:"rerank_weight"`
	BaseWeight              float64 `yaml:"base_weight"`
	TokenBudget             int     `yaml:"token_budget"`
	VectorTokenBudget       int     `yaml:"vector_token_budget"`
	CommunityPreambleBudget int     `yaml:"community_preamble_budget"`
	MaxRelationships        int     `yaml:"max_relationships"`
	MaxEntityDescriptions   int     `yaml:"max_entity_descriptions"`

	// Route behavior.
	EnrichmentCap      int     `yaml:"enrichment_cap"`
	MaxSubQuestions    int     `yaml:"max_sub_questions"`
	SeedEntityK        int     `yaml:"seed_entity_k"`
	SeedEntityMinScore float64 `yaml:"seed_entity_min_score"`

	// Dispatcher.
	DeadlineMS      int `yaml:"deadline_ms"`
	MaxConcurrent   int `yaml:"max_concurrent"`
	EvidenceTopK    int `yaml:"evidence_top_k"`
	MaxOutputTokens int `yaml:"max_output_tokens"`
}

func DefaultConfig() Config {
	return Config{
		RRFC:      60,
		KVector:   30,
		KBM25:     30,
		KOut:      20,
		MaxPerDoc: 2,
		MinDocs:   3,

		CommunityTopK:     3,
		CommunityMinScore: 0.05,

		HubsPerCommunity: 5,

		Damping:   0.5,
		SimWeight: 0.3,
		HubWeight: 0.2,

		MaxChunksPerEntity:    3,
		MentionsMaxPerSection: 3,
		MentionsMaxPerDoc:     6,

		BeamWidth: 10,
		MaxHops:   3,

		RerankWeight:            0.7,
		BaseWeight:              0.3,
		TokenBudget:             32000,
		VectorTokenBudget:       16000,
		CommunityPreambleBudget: 2000,
		MaxRelationships:        20,
		MaxEntityDescriptions:   10,

		EnrichmentCap:      10,
		MaxSubQuestions:    4,
		SeedEntityK:        10,
		SeedEntityMinScore: 0.3,

		DeadlineMS:      60000,
		MaxConcurrent:   16,
		EvidenceTopK:    20,
		MaxOutputTokens: 2048,
	}
}

// LoadConfig layers the optional YAML file and env overrides on top of the
// defaults. Unknown or malformed values fall back silently to defaults;
// a missing file is not an error.
func LoadConfig(log *logger.Logger) Config {
	cfg := DefaultConfig()

	if path := envutil.Str("VERIDOC_CONFIG", ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Warn("config file unreadable, using defaults", "path", path, "error", err)
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			log.Warn("config file malformed, using defaults", "path", path, "error", err)
			cfg = DefaultConfig()
		}
	}

	cfg.RRFC = envutil.Int("VERIDOC_RRF_C", cfg.RRFC)
	cfg.RerankWeight = envutil.Float("VERIDOC_RERANK_WEIGHT", cfg.RerankWeight)
	cfg.BaseWeight = envutil.Float("VERIDOC_BASE_WEIGHT", cfg.BaseWeight)
	cfg.TokenBudget = envutil.Int("VERIDOC_TOKEN_BUDGET", cfg.TokenBudget)
	cfg.DeadlineMS = envutil.Int("VERIDOC_DEADLINE_MS", cfg.DeadlineMS)
	cfg.MaxConcurrent = envutil.Int("VERIDOC_MAX_CONCURRENT", cfg.MaxConcurrent)
	return cfg
}
