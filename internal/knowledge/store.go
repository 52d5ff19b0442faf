package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/relaybase/relaybase/internal/log"
)

// ErrCollectionNotFound indicates the named collection holds no documents.
var ErrCollectionNotFound = errors.New("collection not found")

// Store manages documents with vector search capabilities backed by
// PostgreSQL + pgvector. Store is safe for concurrent use by multiple
// goroutines.
type Store struct {
	pool     *pgxpool.Pool
	embedder ai.Embedder
	logger   log.Logger
}

// New creates a knowledge store.
func New(pool *pgxpool.Pool, embedder ai.Embedder, logger log.Logger) *Store {
	return &Store{
		pool:     pool,
		embedder: embedder,
		logger:   logger,
	}
}

// embed generates embeddings for the given texts in a single request.
func (s *Store) embed(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	input := make([]*ai.Document, len(texts))
	for i, t := range texts {
		input[i] = &ai.Document{Content: []*ai.Part{ai.NewTextPart(t)}}
	}

	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{Input: input})
	if err != nil {
		return nil, fmt.Errorf("generating embeddings: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d embeddings for %d inputs",
			len(resp.Embeddings), len(texts))
	}

	vectors := make([]pgvector.Vector, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if len(e.Embedding) != VectorDimension {
			return nil, fmt.Errorf("embedder produced %d dimensions, schema requires %d",
				len(e.Embedding), VectorDimension)
		}
		vectors[i] = pgvector.NewVector(e.Embedding)
	}
	return vectors, nil
}

// Add embeds and stores documents in a collection. metadatas may be nil
// or shorter than contents; missing entries get empty metadata. Returns
// the generated document IDs in input order.
func (s *Store) Add(ctx context.Context, collection string, contents []string, metadatas []map[string]string) ([]string, error) {
	if len(contents) == 0 {
		return nil, fmt.Errorf("no documents to add")
	}
	if collection == "" {
		collection = DefaultCollection
	}

	vectors, err := s.embed(ctx, contents)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin add documents: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				s.logger.Debug("add documents rollback", "error", rbErr)
			}
		}
	}()

	ids := make([]string, len(contents))
	for i, content := range contents {
		metadata := map[string]string{}
		if i < len(metadatas) && metadatas[i] != nil {
			metadata = metadatas[i]
		}
		metadataJSON, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("marshaling metadata %d: %w", i, err)
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO documents (collection, content, embedding, metadata)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id`,
			collection, content, vectors[i], metadataJSON,
		).Scan(&ids[i])
		if err != nil {
			return nil, fmt.Errorf("inserting document %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit add documents: %w", err)
	}
	committed = true

	s.logger.Debug("added documents", "collection", collection, "count", len(ids))
	return ids, nil
}

// Search performs semantic search within a collection, ordered by cosine
// similarity. A query timeout keeps slow vector scans from blocking
// request handlers.
//
// Example:
//
//	results, err := store.Search(ctx, "docs", "deployment steps",
//	    knowledge.WithTopK(10),
//	    knowledge.WithFilter("source", "handbook"))
func (s *Store) Search(ctx context.Context, collection, query string, opts ...SearchOption) ([]Result, error) {
	if query == "" {
		return nil, fmt.Errorf("empty search query")
	}
	if collection == "" {
		collection = DefaultCollection
	}
	cfg := buildSearchConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	vectors, err := s.embed(queryCtx, []string{query})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("embedding generation timeout: %w", err)
		}
		return nil, err
	}
	queryVec := vectors[0]

	// Metadata filters use JSONB containment with a marshaled parameter;
	// user input never reaches the SQL text.
	sql := `SELECT id, collection, content, metadata, created_at,
	               1 - (embedding <=> $1) AS similarity
	        FROM documents
	        WHERE collection = $2`
	args := []any{queryVec, collection}
	if len(cfg.filter) > 0 {
		filterJSON, marshalErr := json.Marshal(cfg.filter)
		if marshalErr != nil {
			return nil, fmt.Errorf("marshaling filter: %w", marshalErr)
		}
		sql += ` AND metadata @> $3`
		args = append(args, filterJSON)
	}
	sql += fmt.Sprintf(` ORDER BY embedding <=> $1 LIMIT %d`, cfg.topK)

	rows, err := s.pool.Query(queryCtx, sql, args...)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search query timeout: %w", err)
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var metadataJSON []byte
		if err := rows.Scan(&r.ID, &r.Collection, &r.Content, &metadataJSON, &r.CreatedAt, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if err := json.Unmarshal(metadataJSON, &r.Metadata); err != nil {
			s.logger.Warn("failed to parse metadata", "document_id", r.ID, "error", err)
			r.Metadata = map[string]string{}
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return results, nil
}

// Delete removes documents by ID. Unknown IDs are ignored; the returned
// count reflects rows actually removed.
func (s *Store) Delete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE id = ANY($1)`, ids,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting documents: %w", err)
	}
	deleted := int(tag.RowsAffected())
	s.logger.Debug("deleted documents", "requested", len(ids), "deleted", deleted)
	return deleted, nil
}

// ListCollections returns all collections with their document counts.
func (s *Store) ListCollections(ctx context.Context) ([]CollectionInfo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT collection, COUNT(*) FROM documents GROUP BY collection ORDER BY collection`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	defer rows.Close()

	var out []CollectionInfo
	for rows.Next() {
		var info CollectionInfo
		if err := rows.Scan(&info.Name, &info.Documents); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collections: %w", err)
	}
	return out, nil
}

// Collection returns info for a single collection, or
// ErrCollectionNotFound when it holds no documents.
func (s *Store) Collection(ctx context.Context, name string) (*CollectionInfo, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM documents WHERE collection = $1`, name,
	).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("collection info: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: %q", ErrCollectionNotFound, name)
	}
	return &CollectionInfo{Name: name, Documents: count}, nil
}

// Ping verifies the backing database is reachable. Used by the readiness
// probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
