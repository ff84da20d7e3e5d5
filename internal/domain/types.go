// Package domain holds the read-only corpus entities and the query-scoped
// values that flow through the retrieval pipeline. Corpus IDs are opaque
// strings assigned at ingestion time; nothing here is mutated at query time.
package domain

type Document struct {
	DocID        string
	Title        string
	SectionIndex []string
}

type TextChunk struct {
	ChunkID    string
	DocID      string
	DocTitle   string
	SectionID  string
	Text       string
	Page       int
	TokenCount int
	Embedding  []float32
	// Lead marks the first chunk of its document, used for coverage gap-fill.
	Lead bool
	// Found is false when a requested chunk ID did not resolve; the entry is
	// kept at its request position so callers can align by index.
	Found bool
}

type Sentence struct {
	SentID    string
	ChunkID   string
	Offset    int
	Text      string
	Embedding []float32
}

type Entity struct {
	EntityID    string
	Name        string
	Description string
	Embedding   []float32
	Degree      int
	CommunityID string
}

type Relationship struct {
	Src       string
	Dst       string
	Predicate string
	Weight    float64
}

type Community struct {
	CommunityID       string
	Title             string
	Summary           string
	SummaryEmbedding  []float32
	MemberEntityIDs   []string
	EmbeddingTextHash string
}

type EntityDescription struct {
	EntityID    string
	Description string
}

type CandidateSource string

const (
	SourceVector    CandidateSource = "vector"
	SourceBM25      CandidateSource = "bm25"
	SourceMentions  CandidateSource = "mentions"
	SourcePPR       CandidateSource = "ppr"
	SourceCommunity CandidateSource = "community"
)

// Candidate is one retrievable evidence unit. Retrievers own the allocation;
// the distiller consumes the pool and imposes the final order.
type Candidate struct {
	ChunkID       string
	SentID        string
	DocID         string
	SectionID     string
	Text          string
	Sources       []CandidateSource
	BaseScore     float64
	Rank          int
	EntityAnchors []string
	Embedding     []float32
}

type DistilledContext struct {
	Candidates         []Candidate
	TotalTokens        int
	CommunityPreamble  string
	EntityDescriptions []EntityDescription
	Relationships      []Relationship
}

type Route string

const (
	RouteVector Route = "vector"
	RouteLocal  Route = "local"
	RouteGlobal Route = "global"
	RouteDrift  Route = "drift"
)

func ValidRoute(s string) bool {
	switch Route(s) {
	case RouteVector, RouteLocal, RouteGlobal, RouteDrift:
		return true
	}
	return false
}

type ResponseType string

const (
	ResponseSummary  ResponseType = "summary"
	ResponseDetailed ResponseType = "detailed"
)

// RefusalSentence is the canonical refusal, byte-for-byte.
const RefusalSentence = "The requested information was not found in the available documents."

type QueryRequest struct {
	QueryText     string       `json:"query_text"`
	GroupID       string       `json:"group_id"`
	RouteOverride string       `json:"route_override,omitempty"`
	ResponseType  ResponseType `json:"response_type,omitempty"`
	DeadlineMS    int          `json:"deadline_ms,omitempty"`
	TokenBudget   int          `json:"token_budget,omitempty"`
	Debug         bool         `json:"debug,omitempty"`
}

type Citation struct {
	Marker  string `json:"marker"`
	ChunkID string `json:"chunk_id"`
	SentID  string `json:"sent_id,omitempty"`
	DocID   string `json:"doc_id"`
}

type EvidenceNode struct {
	EntityID string  `json:"entity_id"`
	Score    float64 `json:"score"`
}

type QueryResponse struct {
	AnswerText    string           `json:"answer_text"`
	Citations     []Citation       `json:"citations"`
	RouteTaken    Route            `json:"route_taken"`
	Refused       bool             `json:"refused"`
	EvidenceNodes []EvidenceNode   `json:"evidence_nodes"`
	Timings       map[string]int64 `json:"timings"`
	Error         string           `json:"error,omitempty"`
	Trace         map[string]any   `json:"trace,omitempty"`
}

// Scored result rows returned by the store; ordering rules are documented on
// the store operations themselves.

type ScoredSentence struct {
	SentID  string
	ChunkID string
	Score   float64
}

type ScoredChunk struct {
	ChunkID string
	Score   float64
}

type ScoredEntity struct {
	EntityID string
	Score    float64
}

type MentionHit struct {
	EntityName string
	ChunkID    string
}

// EntityPath is a beam-walk terminal entity together with the hop path that
// reached it, kept for citation provenance.
type EntityPath struct {
	EntityID string
	Path     []string
}
