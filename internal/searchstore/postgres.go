package searchstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store against a Postgres database with the
// pgvector extension. Hybrid ranking is done inside the database by the
// match_documents function, which fuses vector similarity with keyword
// overlap and returns candidates already ordered.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a connection pool and verifies the database is
// reachable.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Search calls the match_documents function with the query embedding and
// the expanded keyword list.
func (s *PostgresStore) Search(ctx context.Context, embedding []float32, keywords []string, limit int) ([]Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT page_id, content, metadata, similarity
		   FROM match_documents($1::vector, $2, $3)`,
		vectorLiteral(embedding), keywords, limit)
	if err != nil {
		return nil, fmt.Errorf("hybrid search failed: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			doc  Document
			meta []byte
		)
		if err := rows.Scan(&doc.PageID, &doc.Content, &meta, &doc.Score); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		if err := json.Unmarshal(meta, &doc.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata for page %s: %w", doc.PageID, err)
		}
		if doc.Metadata.PageID == "" {
			doc.Metadata.PageID = doc.PageID
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search results: %w", err)
	}

	return docs, nil
}

// PagesByIDs looks up page metadata directly, without re-running search.
func (s *PostgresStore) PagesByIDs(ctx context.Context, pageIDs []string) ([]Metadata, error) {
	if len(pageIDs) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT ON (page_id) page_id, metadata
		   FROM site_pages
		  WHERE page_id = ANY($1)`,
		pageIDs)
	if err != nil {
		return nil, fmt.Errorf("page lookup failed: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]Metadata, len(pageIDs))
	for rows.Next() {
		var (
			id   string
			meta []byte
		)
		if err := rows.Scan(&id, &meta); err != nil {
			return nil, fmt.Errorf("scanning page row: %w", err)
		}
		var m Metadata
		if err := json.Unmarshal(meta, &m); err != nil {
			return nil, fmt.Errorf("decoding metadata for page %s: %w", id, err)
		}
		if m.PageID == "" {
			m.PageID = id
		}
		byID[id] = m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading page rows: %w", err)
	}

	// Preserve the caller's ordering.
	ordered := make([]Metadata, 0, len(pageIDs))
	for _, id := range pageIDs {
		if m, ok := byID[id]; ok {
			ordered = append(ordered, m)
		}
	}
	return ordered, nil
}

// MatchCachedAnswer queries the semantic cache for a near-duplicate question.
func (s *PostgresStore) MatchCachedAnswer(ctx context.Context, embedding []float32, threshold float64) (*CachedAnswer, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT question, answer, similarity
		   FROM match_chat_cache($1::vector, $2, 1)`,
		vectorLiteral(embedding), threshold)

	var hit CachedAnswer
	if err := row.Scan(&hit.Question, &hit.Answer, &hit.Similarity); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("semantic cache lookup failed: %w", err)
	}
	return &hit, nil
}

// SaveCachedAnswer stores a new semantic-cache entry.
func (s *PostgresStore) SaveCachedAnswer(ctx context.Context, question, answer string, embedding []float32) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chat_cache (question, answer, embedding) VALUES ($1, $2, $3::vector)`,
		question, answer, vectorLiteral(embedding))
	if err != nil {
		return fmt.Errorf("semantic cache insert failed: %w", err)
	}
	return nil
}

// vectorLiteral renders an embedding in pgvector's input format.
func vectorLiteral(embedding []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range embedding {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}

// Ensure PostgresStore implements Store interface.
var _ Store = (*PostgresStore)(nil)
