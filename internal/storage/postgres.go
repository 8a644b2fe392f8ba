// Package storage persists the domain model (internal/domainmodel) to
// Postgres and provides the dense vector store the retrieval pipeline
// reads from. Schema management and query shape follow
// internal/persistence/databases/postgres_vector.go.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"knowledgetree/internal/domainmodel"
)

// Postgres is the project/document/chunk/category store backing the
// knowledge-management core. One instance is shared across a process;
// all methods are safe for concurrent use because pgxpool itself is.
type Postgres struct {
	pool       *pgxpool.Pool
	dimensions int
}

// NewPostgres opens the schema (idempotently) against pool and returns a
// ready Postgres store. dimensions fixes the embedding column width for
// the whole deployment, matching the embedder's Dimension().
func NewPostgres(ctx context.Context, pool *pgxpool.Pool, dimensions int) (*Postgres, error) {
	p := &Postgres{pool: pool, dimensions: dimensions}
	if err := p.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("storage: ensure schema: %w", err)
	}
	return p, nil
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return err
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id BIGSERIAL PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			id BIGSERIAL PRIMARY KEY,
			project_id BIGINT NOT NULL REFERENCES projects(id),
			title TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL,
			locator TEXT NOT NULL,
			state TEXT NOT NULL DEFAULT 'pending',
			page_count INT NOT NULL DEFAULT 0,
			error_message TEXT NOT NULL DEFAULT '',
			extraction_metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id BIGSERIAL PRIMARY KEY,
			document_id BIGINT NOT NULL REFERENCES documents(id),
			project_id BIGINT NOT NULL REFERENCES projects(id),
			chunk_index INT NOT NULL,
			text TEXT NOT NULL,
			before_text TEXT NOT NULL DEFAULT '',
			after_text TEXT NOT NULL DEFAULT '',
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			embedding vector(%d),
			has_embedding BOOLEAN NOT NULL DEFAULT false
		)`, p.dimensions),
		`CREATE INDEX IF NOT EXISTS chunks_project_embedded_idx
			ON chunks (project_id) WHERE has_embedding`,
		`CREATE UNIQUE INDEX IF NOT EXISTS chunks_doc_index_idx
			ON chunks (document_id, chunk_index)`,
		`CREATE TABLE IF NOT EXISTS categories (
			id BIGSERIAL PRIMARY KEY,
			project_id BIGINT NOT NULL REFERENCES projects(id),
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			color TEXT NOT NULL DEFAULT '',
			icon TEXT NOT NULL DEFAULT '',
			depth INT NOT NULL DEFAULT 0,
			sibling_order INT NOT NULL DEFAULT 0,
			parent_id BIGINT REFERENCES categories(id),
			source_url TEXT NOT NULL DEFAULT '',
			source_url_path TEXT NOT NULL DEFAULT '',
			content_hash TEXT NOT NULL DEFAULT '',
			last_crawled_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS crawl_jobs (
			id BIGSERIAL PRIMARY KEY,
			project_id BIGINT NOT NULL REFERENCES projects(id),
			url TEXT NOT NULL,
			depth_limit INT NOT NULL DEFAULT 0,
			max_pages INT NOT NULL DEFAULT 0,
			engine TEXT NOT NULL DEFAULT '',
			url_pattern TEXT NOT NULL DEFAULT '',
			content_filter TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			urls_crawled INT NOT NULL DEFAULT 0,
			urls_failed INT NOT NULL DEFAULT 0,
			document_id BIGINT REFERENCES documents(id),
			error_message TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS conversation_messages (
			id BIGSERIAL PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			chunk_ids BIGINT[] NOT NULL DEFAULT '{}',
			input_tokens INT NOT NULL DEFAULT 0,
			output_tokens INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS conversation_messages_conv_idx
			ON conversation_messages (conversation_id, created_at)`,
	}
	for _, s := range stmts {
		if _, err := p.pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("exec %q: %w", s, err)
		}
	}
	return nil
}

// CreateDocument inserts doc and returns its assigned ID.
func (p *Postgres) CreateDocument(ctx context.Context, doc *domainmodel.Document) (int64, error) {
	var id int64
	err := p.pool.QueryRow(ctx, `
		INSERT INTO documents (project_id, title, source, locator, state, page_count, extraction_metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		doc.ProjectID, doc.Title, doc.Source, doc.Locator, doc.State, doc.PageCount, doc.ExtractionMetadata,
	).Scan(&id)
	return id, err
}

// UpdateDocumentState transitions a document's lifecycle state, optionally
// recording an error message. Only the ingestion worker that owns the
// document should call this.
func (p *Postgres) UpdateDocumentState(ctx context.Context, docID int64, state domainmodel.ProcessingState, errMsg string) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE documents SET state=$2, error_message=$3 WHERE id=$1`,
		docID, state, errMsg)
	return err
}

// InsertChunks bulk-inserts chunks for a document inside a single
// transaction, embedding vectors encoded via pgvector.NewVector.
func (p *Postgres) InsertChunks(ctx context.Context, projectID, documentID int64, chunks []domainmodel.Chunk) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, c := range chunks {
		var vecArg any
		if c.HasEmbedding && len(c.Embedding) > 0 {
			vecArg = pgvector.NewVector(c.Embedding)
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO chunks (document_id, project_id, chunk_index, text, before_text, after_text, metadata, embedding, has_embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (document_id, chunk_index) DO UPDATE
				SET text=EXCLUDED.text, before_text=EXCLUDED.before_text, after_text=EXCLUDED.after_text,
					metadata=EXCLUDED.metadata, embedding=EXCLUDED.embedding, has_embedding=EXCLUDED.has_embedding`,
			documentID, projectID, c.ChunkIndex, c.Text, c.Before, c.After, c.Metadata, vecArg, c.HasEmbedding,
		)
		if err != nil {
			return fmt.Errorf("storage: insert chunk %d: %w", c.ChunkIndex, err)
		}
	}
	return tx.Commit(ctx)
}

// DenseCandidate is one nearest-neighbor hit from the dense store.
type DenseCandidate struct {
	ChunkID    int64
	DocumentID int64
	Text       string
	Before     string
	After      string
	Metadata   map[string]any
	Similarity float64 // cosine similarity, higher is better
}

// SimilaritySearch returns the k nearest chunks to query within projectID,
// using pgvector's cosine-distance operator. No category filter is
// applied: results span all of the project's embedded chunks. Cosine is
// pinned per spec.md §6;
// the metric is not configurable here (unlike the teacher's generic
// postgres_vector.go, which exposes l2/ip as well).
func (p *Postgres) SimilaritySearch(ctx context.Context, projectID int64, query []float32, k int) ([]DenseCandidate, error) {
	if k <= 0 {
		k = 10
	}
	vec := pgvector.NewVector(query)
	rows, err := p.pool.Query(ctx, `
		SELECT c.id, c.document_id, c.text, c.before_text, c.after_text, c.metadata,
			1 - (c.embedding <=> $2) AS similarity
		FROM chunks c
		WHERE c.project_id = $1 AND c.has_embedding
		ORDER BY c.embedding <=> $2
		LIMIT $3`,
		projectID, vec, k,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: similarity search: %w", err)
	}
	defer rows.Close()

	var out []DenseCandidate
	for rows.Next() {
		var d DenseCandidate
		if err := rows.Scan(&d.ChunkID, &d.DocumentID, &d.Text, &d.Before, &d.After, &d.Metadata, &d.Similarity); err != nil {
			return nil, fmt.Errorf("storage: scan similarity row: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// AllChunkTexts loads every chunk's text for projectID, used to build
// the in-memory BM25 index at startup.
// projectID <= 0 loads chunks across every project, for the one global
// sparse index the retrieval coordinator searches.
func (p *Postgres) AllChunkTexts(ctx context.Context, projectID int64) ([]BM25Row, error) {
	var rows pgx.Rows
	var err error
	if projectID > 0 {
		rows, err = p.pool.Query(ctx, `
			SELECT id, document_id, text FROM chunks WHERE project_id = $1`, projectID)
	} else {
		rows, err = p.pool.Query(ctx, `SELECT id, document_id, text FROM chunks`)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: load chunk texts: %w", err)
	}
	defer rows.Close()

	var out []BM25Row
	for rows.Next() {
		var r BM25Row
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.Text); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// BM25Row is the minimal shape the sparse index needs to build its
// postings lists.
type BM25Row struct {
	ChunkID    int64
	DocumentID int64
	Text       string
}

// DocumentTimestamp returns a document's creation time, used by the
// recency-boost rerank stage.
func (p *Postgres) DocumentTimestamp(ctx context.Context, documentID int64) (time.Time, error) {
	var t time.Time
	err := p.pool.QueryRow(ctx, `SELECT created_at FROM documents WHERE id=$1`, documentID).Scan(&t)
	return t, err
}
