// Package ingest runs the background document-ingestion pipeline: extract
// text from a source (PDF, web page, YouTube transcript), chunk it, embed
// the chunks, and persist them, emitting percentage-windowed progress
// events throughout. Worker-pool shape is grounded on
// internal/documents/pipeline.go's producer/worker-channel pattern;
// percentage windows are grounded on
// original_source/.../document_tasks.py's stage-weighted progress
// reporting.
package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"knowledgetree/internal/agentbrowser"
	"knowledgetree/internal/chunker"
	"knowledgetree/internal/config"
	"knowledgetree/internal/domainmodel"
	"knowledgetree/internal/embedder"
	"knowledgetree/internal/pdf"
	"knowledgetree/internal/scrape"
	"knowledgetree/internal/youtube"
)

// Stage names reported in Progress events.
const (
	StageInit       = "init"
	StageExtraction = "extraction"
	StageCrawl      = "crawl"
	StageExtract    = "extract"
	StageChunking   = "chunking"
	StageEmbeddings = "embeddings"
	StageStatistics = "statistics"
	StageStorage    = "storage"
	StageFinalize   = "finalize"
)

// Progress is one percentage-windowed event emitted during a job's run.
// Percent is always in [0, 100] and monotonically non-decreasing within a
// single job, per spec.md's progress-event contract.
type Progress struct {
	DocumentID int64
	Stage      string
	Percent    int
	Message    string
}

// ProgressFunc receives Progress events. Nil is valid and means "discard".
type ProgressFunc func(Progress)

func emit(fn ProgressFunc, docID int64, stage string, percent int, msg string) {
	if fn == nil {
		return
	}
	fn(Progress{DocumentID: docID, Stage: stage, Percent: percent, Message: msg})
}

// window maps a fraction in [0,1] of a stage's own work onto the stage's
// slice of the job's overall [lo,hi] percentage range.
func window(lo, hi int, frac float64) int {
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return lo + int(float64(hi-lo)*frac)
}

// Store is the persistence collaborator the coordinator needs; storage.Postgres
// satisfies it directly.
type Store interface {
	CreateDocument(ctx context.Context, doc *domainmodel.Document) (int64, error)
	UpdateDocumentState(ctx context.Context, docID int64, state domainmodel.ProcessingState, errMsg string) error
	InsertChunks(ctx context.Context, projectID, documentID int64, chunks []domainmodel.Chunk) error
}

// Coordinator wires the extraction backends, chunker, and embedder into
// one worker-pool-driven ingestion run per document, following
// internal/documents/pipeline.go's Options/Ingest shape but organized as a
// long-lived coordinator (the teacher's ingestion is one-shot per call;
// this module additionally owns job-type dispatch across PDF/web/YouTube
// sources, which the teacher's single-splitter pipeline didn't need).
type Coordinator struct {
	store        Store
	emb          embedder.Embedder
	textExtractor *pdf.TextExtractor
	selector     *scrape.Selector
	engines      map[string]scrape.Engine
	ytExtractor  *youtube.Extractor
	browser      *agentbrowser.Browser
	cfg          config.IngestionConfig
	chunkOpt     chunker.Options
}

// Dependencies bundles the collaborators New needs; fields left nil
// disable the corresponding source kind (e.g. a deployment with no
// chromedp binary available can omit the headless engine).
type Dependencies struct {
	Store         Store
	Embedder      embedder.Embedder
	TextExtractor *pdf.TextExtractor
	Selector      *scrape.Selector
	Engines       map[string]scrape.Engine
	YouTube       *youtube.Extractor
	Browser       *agentbrowser.Browser
	Ingestion     config.IngestionConfig
	Chunk         chunker.Options
}

// New builds a Coordinator from deps.
func New(deps Dependencies) *Coordinator {
	if deps.Ingestion.MaxWorkers <= 0 {
		deps.Ingestion.MaxWorkers = 4
	}
	return &Coordinator{
		store:         deps.Store,
		emb:           deps.Embedder,
		textExtractor: deps.TextExtractor,
		selector:      deps.Selector,
		engines:       deps.Engines,
		ytExtractor:   deps.YouTube,
		browser:       deps.Browser,
		cfg:           deps.Ingestion,
		chunkOpt:      deps.Chunk,
	}
}

// Job describes one ingestion request.
type Job struct {
	ProjectID int64
	Source    domainmodel.SourceKind
	Locator   string // file path (pdf) or URL (web/youtube/agentic)
	Title     string
	Prompt    string // agentic-mode instruction; empty selects plain crawl
	AgentMode bool
}

// Run executes job end-to-end, creating its Document row up front and
// transitioning its state as the pipeline progresses. It returns the
// created document's id even on failure, so callers can inspect
// ErrorMessage via the store.
func (c *Coordinator) Run(ctx context.Context, job Job, progress ProgressFunc) (int64, error) {
	doc := &domainmodel.Document{
		ProjectID: job.ProjectID,
		Title:     job.Title,
		Source:    job.Source,
		Locator:   job.Locator,
		State:     domainmodel.StatePending,
	}
	docID, err := c.store.CreateDocument(ctx, doc)
	if err != nil {
		return 0, fmt.Errorf("ingest: create document: %w", err)
	}
	log.Info().Int64("document_id", docID).Str("source", string(job.Source)).Str("locator", job.Locator).
		Bool("agent_mode", job.AgentMode).Msg("ingest: job started")
	_ = c.store.UpdateDocumentState(ctx, docID, domainmodel.StateProcessing, "")

	var runErr error
	switch job.Source {
	case domainmodel.SourcePDF:
		runErr = c.runPDF(ctx, docID, job, progress)
	case domainmodel.SourceWeb:
		if job.AgentMode {
			runErr = c.runAgentic(ctx, docID, job, progress)
		} else {
			runErr = c.runWeb(ctx, docID, job, progress)
		}
	case domainmodel.SourceYouTube:
		runErr = c.runYouTube(ctx, docID, job, progress)
	default:
		runErr = fmt.Errorf("ingest: unsupported source kind %q", job.Source)
	}

	if runErr != nil {
		log.Error().Err(runErr).Int64("document_id", docID).Msg("ingest: job failed")
		_ = c.store.UpdateDocumentState(ctx, docID, domainmodel.StateFailed, runErr.Error())
		return docID, runErr
	}
	log.Info().Int64("document_id", docID).Msg("ingest: job completed")
	_ = c.store.UpdateDocumentState(ctx, docID, domainmodel.StateCompleted, "")
	return docID, nil
}

// chunkAndEmbed runs the shared chunk -> embed -> store tail shared by
// every source kind, windowed into [chunkLo,chunkHi] for chunking and
// [embedLo,embedHi] for embedding, then commits in [storeLo,storeHi].
func (c *Coordinator) chunkAndEmbed(ctx context.Context, docID, projectID int64, text string, pageAware bool,
	chunkLo, chunkHi, embedLo, embedHi, storeLo, storeHi int, progress ProgressFunc) error {

	emit(progress, docID, StageChunking, chunkLo, "splitting text into chunks")
	var chunks []chunker.Chunk
	if pageAware {
		chunks = chunker.ChunkByPages(text, c.chunkOpt)
	} else {
		chunks = chunker.ChunkText(text, c.chunkOpt)
	}
	emit(progress, docID, StageChunking, chunkHi, fmt.Sprintf("produced %d chunks", len(chunks)))

	if len(chunks) == 0 {
		return fmt.Errorf("ingest: no chunks produced from extracted text")
	}

	domainChunks := make([]domainmodel.Chunk, len(chunks))
	batch := c.cfg.MaxWorkers
	if batch <= 0 {
		batch = 1
	}
	var mu sync.Mutex
	var wg sync.WaitGroup
	jobs := make(chan int, len(chunks))
	for i := range chunks {
		jobs <- i
	}
	close(jobs)

	embedded := 0
	for w := 0; w < batch; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				ck := chunks[i]
				vec, err := c.emb.EmbedContextual(ctx, ck.Text, ck.Before, ck.After)
				if err != nil {
					log.Warn().Err(err).Int64("document_id", docID).Int("chunk_index", ck.Index).
						Msg("ingest: chunk embedding failed, storing chunk without a vector")
				}
				mu.Lock()
				if err == nil {
					domainChunks[i] = domainmodel.Chunk{
						ChunkIndex: ck.Index, Text: ck.Text, Before: ck.Before, After: ck.After,
						Metadata:     map[string]any{"page_number": ck.PageNumber},
						Embedding:    vec,
						HasEmbedding: true,
					}
				} else {
					domainChunks[i] = domainmodel.Chunk{
						ChunkIndex: ck.Index, Text: ck.Text, Before: ck.Before, After: ck.After,
						Metadata: map[string]any{"page_number": ck.PageNumber},
					}
				}
				embedded++
				emit(progress, docID, StageEmbeddings, window(embedLo, embedHi, float64(embedded)/float64(len(chunks))),
					fmt.Sprintf("embedded %d/%d chunks", embedded, len(chunks)))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	emit(progress, docID, StageStorage, storeLo, "persisting chunks")
	if err := c.store.InsertChunks(ctx, projectID, docID, domainChunks); err != nil {
		return fmt.Errorf("ingest: insert chunks: %w", err)
	}
	emit(progress, docID, StageStorage, storeHi, "chunks persisted")
	return nil
}
