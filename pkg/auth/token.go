package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// TokenPrefix identifies steward tokens
	TokenPrefix = "stw_"
	// TokenLength is the total length of random bytes (32 bytes = 256 bits)
	TokenLength = 32
)

var (
	// ErrTokenNotFound is returned when no live token matches
	ErrTokenNotFound = errors.New("token not found")
	// ErrTokenRevoked is returned for a revoked token
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTokenExpired is returned for an expired token
	ErrTokenExpired = errors.New("token expired")
)

// TokenGenerator generates and validates API tokens
type TokenGenerator struct{}

// NewTokenGenerator creates a new token generator
func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{}
}

// GenerateToken creates a new API token.
// Format: stw_<base64url(32 random bytes)>
func (tg *TokenGenerator) GenerateToken() (token string, tokenHash string, tokenPrefix string, err error) {
	randomBytes := make([]byte, TokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encodedToken := base64.RawURLEncoding.EncodeToString(randomBytes)
	fullToken := TokenPrefix + encodedToken

	hash := sha256.Sum256([]byte(fullToken))
	hashStr := hex.EncodeToString(hash[:])

	// First 8 chars after the prefix, kept for display and lookup
	prefix := TokenPrefix
	if len(encodedToken) >= 8 {
		prefix = TokenPrefix + encodedToken[:8]
	}

	return fullToken, hashStr, prefix, nil
}

// HashToken computes the SHA256 hash of a token for lookup
func (tg *TokenGenerator) HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateTokenFormat checks if a token has the correct format
func (tg *TokenGenerator) ValidateTokenFormat(token string) error {
	if !strings.HasPrefix(token, TokenPrefix) {
		return fmt.Errorf("token must start with %q", TokenPrefix)
	}

	encodedPart := strings.TrimPrefix(token, TokenPrefix)
	if len(encodedPart) == 0 {
		return fmt.Errorf("token is too short")
	}

	if _, err := base64.RawURLEncoding.DecodeString(encodedPart); err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}

	return nil
}

// TokenManager manages API token lifecycle against the database
type TokenManager struct {
	db        *sql.DB
	generator *TokenGenerator
}

// NewTokenManager creates a new token manager
func NewTokenManager(db *sql.DB) *TokenManager {
	return &TokenManager{
		db:        db,
		generator: NewTokenGenerator(),
	}
}

// CreateToken creates and stores a new API token. The plaintext token is
// returned once and never persisted.
func (tm *TokenManager) CreateToken(ctx context.Context, userID int64, name string, expiresAt *time.Time) (*APIToken, string, error) {
	token, tokenHash, tokenPrefix, err := tm.generator.GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	now := time.Now()
	apiToken := &APIToken{
		UserID:      userID,
		TokenHash:   tokenHash,
		TokenPrefix: tokenPrefix,
		Name:        name,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
	}

	err = tm.db.QueryRowContext(ctx, `
		INSERT INTO api_tokens (user_id, token_hash, token_prefix, name, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, userID, tokenHash, tokenPrefix, name, expiresAt, now).Scan(&apiToken.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to store token: %w", err)
	}

	return apiToken, token, nil
}

// ValidateToken validates a presented token and returns the stored
// record. Expired and revoked tokens are rejected.
func (tm *TokenManager) ValidateToken(ctx context.Context, token string) (*APIToken, error) {
	if err := tm.generator.ValidateTokenFormat(token); err != nil {
		return nil, fmt.Errorf("invalid token format: %w", err)
	}

	tokenHash := tm.generator.HashToken(token)

	apiToken := &APIToken{}
	var expiresAt, lastUsedAt, revokedAt sql.NullTime
	err := tm.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, token_prefix, name, expires_at, last_used_at, revoked_at, created_at
		FROM api_tokens
		WHERE token_hash = $1
	`, tokenHash).Scan(
		&apiToken.ID, &apiToken.UserID, &apiToken.TokenHash, &apiToken.TokenPrefix,
		&apiToken.Name, &expiresAt, &lastUsedAt, &revokedAt, &apiToken.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}

	if expiresAt.Valid {
		apiToken.ExpiresAt = &expiresAt.Time
	}
	if lastUsedAt.Valid {
		apiToken.LastUsedAt = &lastUsedAt.Time
	}
	if revokedAt.Valid {
		apiToken.RevokedAt = &revokedAt.Time
		return nil, ErrTokenRevoked
	}
	if apiToken.ExpiresAt != nil && apiToken.ExpiresAt.Before(time.Now()) {
		return nil, ErrTokenExpired
	}

	now := time.Now()
	if _, err := tm.db.ExecContext(ctx, `UPDATE api_tokens SET last_used_at = $1 WHERE id = $2`, now, apiToken.ID); err != nil {
		return nil, fmt.Errorf("failed to touch token: %w", err)
	}
	apiToken.LastUsedAt = &now

	return apiToken, nil
}

// RevokeToken revokes a token by ID
func (tm *TokenManager) RevokeToken(ctx context.Context, tokenID int64) error {
	result, err := tm.db.ExecContext(ctx, `
		UPDATE api_tokens SET revoked_at = $1 WHERE id = $2 AND revoked_at IS NULL
	`, time.Now(), tokenID)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check revocation: %w", err)
	}
	if affected == 0 {
		return ErrTokenNotFound
	}
	return nil
}

// ListUserTokens lists all tokens for a user, newest first
func (tm *TokenManager) ListUserTokens(ctx context.Context, userID int64) ([]*APIToken, error) {
	rows, err := tm.db.QueryContext(ctx, `
		SELECT id, user_id, token_hash, token_prefix, name, expires_at, last_used_at, revoked_at, created_at
		FROM api_tokens
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*APIToken
	for rows.Next() {
		apiToken := &APIToken{}
		var expiresAt, lastUsedAt, revokedAt sql.NullTime
		if err := rows.Scan(
			&apiToken.ID, &apiToken.UserID, &apiToken.TokenHash, &apiToken.TokenPrefix,
			&apiToken.Name, &expiresAt, &lastUsedAt, &revokedAt, &apiToken.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		if expiresAt.Valid {
			apiToken.ExpiresAt = &expiresAt.Time
		}
		if lastUsedAt.Valid {
			apiToken.LastUsedAt = &lastUsedAt.Time
		}
		if revokedAt.Valid {
			apiToken.RevokedAt = &revokedAt.Time
		}
		tokens = append(tokens, apiToken)
	}
	return tokens, rows.Err()
}

// CleanupExpiredTokens deletes tokens expired before the cutoff and
// returns how many were removed. Run by the maintenance job.
func (tm *TokenManager) CleanupExpiredTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := tm.db.ExecContext(ctx, `
		DELETE FROM api_tokens WHERE expires_at IS NOT NULL AND expires_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up expired tokens: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count cleaned tokens: %w", err)
	}
	return affected, nil
}
