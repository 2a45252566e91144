// Package pg is the postgres + pgvector implementation of the vector store.
// Similarity uses the cosine distance operator; ordering ties break on chunk
// ID so repeated searches return identical rankings.
package pg

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/webrag/internal/model"
	"github.com/xxxsen/webrag/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type storeConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func Open(cfg storeConfig) (*sql.DB, error) {
	dsn := cfg.DSN
	if dsn == "" {
		sslmode := cfg.SSLMode
		if sslmode == "" {
			sslmode = "disable"
		}
		dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslmode)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}

func ApplyMigrations(db *sql.DB) error {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	for _, file := range files {
		content, err := fs.ReadFile(migrationsFS, "migrations/"+file)
		if err != nil {
			return err
		}
		for _, q := range strings.Split(string(content), ";") {
			q = strings.TrimSpace(q)
			if q == "" {
				continue
			}
			if _, err := db.Exec(q); err != nil {
				if strings.Contains(err.Error(), "already exists") {
					continue
				}
				return fmt.Errorf("execute query in %s: %w", file, err)
			}
		}
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	const query = `
		INSERT INTO webrag_chunks (chunk_id, source_url, title, content, start_offset, end_offset, token_count, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (chunk_id) DO UPDATE SET
			source_url = EXCLUDED.source_url,
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			start_offset = EXCLUDED.start_offset,
			end_offset = EXCLUDED.end_offset,
			token_count = EXCLUDED.token_count,
			embedding = EXCLUDED.embedding
	`
	dim := len(chunks[0].Embedding)
	for _, chunk := range chunks {
		if chunk.ID == "" {
			return fmt.Errorf("chunk without id")
		}
		if len(chunk.Embedding) == 0 {
			return fmt.Errorf("chunk %s has no embedding", chunk.ID)
		}
		if len(chunk.Embedding) != dim {
			return fmt.Errorf("chunk %s embedding dimension %d, batch holds %d",
				chunk.ID, len(chunk.Embedding), dim)
		}
		if _, err := s.db.ExecContext(ctx, query,
			chunk.ID,
			chunk.SourceURL,
			chunk.Title,
			chunk.Text,
			chunk.StartOffset,
			chunk.EndOffset,
			chunk.TokenCount,
			pgvector.NewVector(chunk.Embedding),
		); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Search(ctx context.Context, vector []float32, k int) ([]model.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	const query = `
		SELECT chunk_id, source_url, title, content, start_offset, end_offset, token_count, embedding,
		       1 - (embedding <=> $1) AS score
		FROM webrag_chunks
		ORDER BY embedding <=> $1 ASC, chunk_id ASC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []model.SearchResult
	for rows.Next() {
		var item model.SearchResult
		var emb pgvector.Vector
		if err := rows.Scan(
			&item.Chunk.ID,
			&item.Chunk.SourceURL,
			&item.Chunk.Title,
			&item.Chunk.Text,
			&item.Chunk.StartOffset,
			&item.Chunk.EndOffset,
			&item.Chunk.TokenCount,
			&emb,
			&item.Score,
		); err != nil {
			return nil, err
		}
		item.Chunk.Embedding = emb.Slice()
		results = append(results, item)
	}
	return results, rows.Err()
}

func (s *Store) DeleteBySource(ctx context.Context, sourceURL string) (int, error) {
	where := map[string]interface{}{
		"source_url": sourceURL,
	}
	sqlStr, args, err := builder.BuildDelete("webrag_chunks", where)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, sqlx.Rebind(sqlx.DOLLAR, sqlStr), args...)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	return int(affected), err
}

func (s *Store) Count(ctx context.Context) (int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM webrag_chunks`)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// CountBySource reports how many chunks a source currently owns.
func (s *Store) CountBySource(ctx context.Context, sourceURL string) (int, error) {
	where := map[string]interface{}{
		"source_url": sourceURL,
	}
	sqlStr, args, err := builder.BuildSelect("webrag_chunks", where, []string{"count(1)"})
	if err != nil {
		return 0, err
	}
	row := s.db.QueryRowContext(ctx, sqlx.Rebind(sqlx.DOLLAR, sqlStr), args...)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func createFactory(args interface{}) (store.VectorStore, error) {
	cfg := &storeConfig{}
	if err := store.DecodeConfig(args, cfg); err != nil {
		return nil, err
	}
	db, err := Open(*cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := ApplyMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return New(db), nil
}

func init() {
	store.Register("pgvector", createFactory)
}
