// Package domainmodel holds the core entities of the knowledge-management
// backend: Project, Document, Chunk, Category, CrawlJob and AgentWorkflow.
// Persistence lives in internal/storage; this package only defines shape
// and the small invariants the rest of the core depends on.
package domainmodel

import "time"

// SourceKind enumerates where a Document's text originated.
type SourceKind string

const (
	SourcePDF     SourceKind = "pdf"
	SourceWeb     SourceKind = "web"
	SourceYouTube SourceKind = "youtube"
	SourceText    SourceKind = "text"
)

// ProcessingState is the Document lifecycle state owned exclusively by the
// ingestion worker that created it.
type ProcessingState string

const (
	StatePending    ProcessingState = "pending"
	StateProcessing ProcessingState = "processing"
	StateCompleted  ProcessingState = "completed"
	StateFailed     ProcessingState = "failed"
)

// Project is the isolation boundary: every retrievable object belongs to
// exactly one project. Ownership/auth is an external concern; the core
// treats ProjectID as an opaque scope key.
type Project struct {
	ID int64
}

// Document is a processed source, created and mutated only by the
// ingestion worker that owns it.
type Document struct {
	ID                 int64
	ProjectID          int64
	Title              string
	Source             SourceKind
	Locator            string // file path or URL
	State              ProcessingState
	PageCount          int
	ErrorMessage       string
	ExtractionMetadata map[string]any
	CreatedAt          time.Time
}

// Chunk is the retrievable text unit. Invariants (enforced by the chunker
// and the storage layer, never by later mutation):
//
//   - ChunkIndex orders chunks uniquely within a Document.
//   - if HasEmbedding, len(Embedding) == D for the deployment's D.
//   - Before/After reflect the physical neighbor's text at creation time.
type Chunk struct {
	ID           int64
	DocumentID   int64
	ChunkIndex   int
	Text         string
	Before       string
	After        string
	Metadata     map[string]any
	Embedding    []float32
	HasEmbedding bool
}

// Category is a node in a per-project hierarchical tree built either from
// a PDF's table of contents or an agentic crawl's generated taxonomy.
//
// Invariants: Parent belongs to the same project; Depth = parent.Depth+1,
// or 0 at the root; Depth <= MaxCategoryDepth.
type Category struct {
	ID            int64
	ProjectID     int64
	Name          string
	Description   string
	Color         string
	Icon          string
	Depth         int
	SiblingOrder  int
	ParentID      *int64
	SourceURL     string
	SourceURLPath string
	ContentHash   string
	LastCrawledAt *time.Time
}

// MaxCategoryDepth bounds Category.Depth per the data model's invariant.
const MaxCategoryDepth = 10

// CrawlStatus is the lifecycle of a CrawlJob.
type CrawlStatus string

const (
	CrawlPending    CrawlStatus = "pending"
	CrawlInProgress CrawlStatus = "in_progress"
	CrawlCompleted  CrawlStatus = "completed"
	CrawlFailed     CrawlStatus = "failed"
)

// CrawlJob is an ingestion task over one or more URLs, owning at most one
// produced Document.
type CrawlJob struct {
	ID             int64
	ProjectID      int64
	URL            string
	DepthLimit     int
	MaxPages       int
	Engine         string // empty -> auto-select
	URLPattern     string
	ContentFilter  string
	Status         CrawlStatus
	URLsCrawled    int
	URLsFailed     int
	DocumentID     *int64
	ErrorMessage   string
}

// AgentWorkflow is a running or completed agentic task. It references
// Documents/Categories by id but does not own them.
type AgentWorkflow struct {
	ID            int64
	ProjectID     int64
	Query         string
	Status        string
	Configuration map[string]any
	ExecutionLog  []string
	CompletedAt   *time.Time
}
