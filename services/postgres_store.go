package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ncnu-assistant/dormmail-backend/models"
)

// PostgresResponseStore keeps cached responses in the dorm_mail_response_cache table
type PostgresResponseStore struct {
	DB  *sql.DB
	now func() time.Time
}

// NewPostgresResponseStore creates a store on an open connection pool
func NewPostgresResponseStore(db *sql.DB) *PostgresResponseStore {
	return &PostgresResponseStore{DB: db, now: time.Now}
}

// Get implements ResponseStore
func (s *PostgresResponseStore) Get(ctx context.Context, key string) (*models.CachedResponse, bool, error) {
	query := `
		SELECT status_code, headers, body, created_at, expires_at
		FROM dorm_mail_response_cache
		WHERE cache_key = $1 AND expires_at > $2
	`

	var (
		response    models.CachedResponse
		headersJSON []byte
	)
	err := s.DB.QueryRowContext(ctx, query, key, s.now()).Scan(
		&response.StatusCode, &headersJSON, &response.Body, &response.CreatedAt, &response.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query cached response: %w", err)
	}

	if err := json.Unmarshal(headersJSON, &response.Headers); err != nil {
		return nil, false, fmt.Errorf("decode cached headers: %w", err)
	}
	return &response, true, nil
}

// Set implements ResponseStore
func (s *PostgresResponseStore) Set(ctx context.Context, key string, response *models.CachedResponse, ttl time.Duration) error {
	headersJSON, err := json.Marshal(response.Headers)
	if err != nil {
		return fmt.Errorf("encode cached headers: %w", err)
	}

	query := `
		INSERT INTO dorm_mail_response_cache (
			id, cache_key, status_code, headers, body, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (cache_key) DO UPDATE SET
			status_code = EXCLUDED.status_code,
			headers = EXCLUDED.headers,
			body = EXCLUDED.body,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at
	`

	now := s.now()
	_, err = s.DB.ExecContext(ctx, query,
		uuid.New(), key, response.StatusCode, string(headersJSON), response.Body, now, now.Add(ttl),
	)
	if err != nil {
		return fmt.Errorf("store cached response: %w", err)
	}
	return nil
}

// DeleteExpired removes expired rows
func (s *PostgresResponseStore) DeleteExpired(ctx context.Context) (int, error) {
	result, err := s.DB.ExecContext(ctx, `DELETE FROM dorm_mail_response_cache WHERE expires_at <= $1`, s.now())
	if err != nil {
		return 0, fmt.Errorf("delete expired responses: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	return int(rowsAffected), nil
}

// Size counts stored rows
func (s *PostgresResponseStore) Size(ctx context.Context) (int, error) {
	var count int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM dorm_mail_response_cache`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count cached responses: %w", err)
	}
	return count, nil
}
