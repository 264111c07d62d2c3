package auth

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	_, err = db.Exec(`
		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL DEFAULT '',
			role_ids TEXT NOT NULL DEFAULT '',
			active INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);

		CREATE TABLE api_tokens (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			token_hash TEXT NOT NULL UNIQUE,
			token_prefix TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			expires_at TIMESTAMP,
			last_used_at TIMESTAMP,
			revoked_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL
		);
	`)
	if err != nil {
		t.Fatalf("Failed to create test tables: %v", err)
	}

	return db
}

func TestParseRoleIDs(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   []int64
		hasErr bool
	}{
		{"empty", "", nil, false},
		{"single", "3", []int64{3}, false},
		{"multiple", "1,3,7", []int64{1, 3, 7}, false},
		{"unsorted with spaces", " 7, 1 ,3", []int64{1, 3, 7}, false},
		{"duplicates", "3,3,1", []int64{1, 3}, false},
		{"blank segments", "1,,3,", []int64{1, 3}, false},
		{"garbage", "1,abc", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRoleIDs(tt.input)
			if tt.hasErr {
				if err == nil {
					t.Errorf("Expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Expected %v, got %v", tt.want, got)
					break
				}
			}
		})
	}
}

func TestUserStore_CRUDWithRoles(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewUserStore(db)

	user, err := store.CreateUser(ctx, "alice", "alice@example.com", []int64{3, 1})
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	got, err := store.GetUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("Failed to get user: %v", err)
	}
	if len(got.RoleIDs) != 2 || got.RoleIDs[0] != 1 || got.RoleIDs[1] != 3 {
		t.Errorf("Expected normalized role ids [1 3], got %v", got.RoleIDs)
	}
	if !got.Active {
		t.Error("Expected new user to be active")
	}

	if _, err := store.CreateUser(ctx, "alice", "", nil); !errors.Is(err, ErrDuplicateUsername) {
		t.Errorf("Expected ErrDuplicateUsername, got %v", err)
	}

	byName, err := store.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("Failed to get user by username: %v", err)
	}
	if byName.ID != user.ID {
		t.Errorf("Expected ID %d, got %d", user.ID, byName.ID)
	}

	updated, err := store.SetUserRoles(ctx, user.ID, []int64{5})
	if err != nil {
		t.Fatalf("Failed to set roles: %v", err)
	}
	if len(updated.RoleIDs) != 1 || updated.RoleIDs[0] != 5 {
		t.Errorf("Expected role ids [5], got %v", updated.RoleIDs)
	}

	deactivated, err := store.UpdateUser(ctx, user.ID, "alice@corp.example.com", false)
	if err != nil {
		t.Fatalf("Failed to update user: %v", err)
	}
	if deactivated.Active || deactivated.Email != "alice@corp.example.com" {
		t.Errorf("Unexpected user after update: %+v", deactivated)
	}

	if err := store.DeleteUser(ctx, user.ID); err != nil {
		t.Fatalf("Failed to delete user: %v", err)
	}
	if _, err := store.GetUser(ctx, user.ID); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}
}

func TestTokenManager_Lifecycle(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	users := NewUserStore(db)
	tokens := NewTokenManager(db)

	user, err := users.CreateUser(ctx, "bob", "", []int64{2})
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	apiToken, plaintext, err := tokens.CreateToken(ctx, user.ID, "ci", nil)
	if err != nil {
		t.Fatalf("Failed to create token: %v", err)
	}
	if apiToken.ID == 0 {
		t.Error("Expected token ID to be assigned")
	}
	if plaintext == "" || plaintext[:len(TokenPrefix)] != TokenPrefix {
		t.Errorf("Expected plaintext token with prefix, got %q", plaintext)
	}

	validated, err := tokens.ValidateToken(ctx, plaintext)
	if err != nil {
		t.Fatalf("Failed to validate token: %v", err)
	}
	if validated.UserID != user.ID {
		t.Errorf("Expected user %d, got %d", user.ID, validated.UserID)
	}
	if validated.LastUsedAt == nil {
		t.Error("Expected last_used_at to be set on validation")
	}

	if _, err := tokens.ValidateToken(ctx, "stw_bogus!!!"); err == nil {
		t.Error("Expected error for malformed token")
	}
	if _, err := tokens.ValidateToken(ctx, TokenPrefix+"QUFBQUFBQUE"); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("Expected ErrTokenNotFound for unknown token, got %v", err)
	}

	if err := tokens.RevokeToken(ctx, apiToken.ID); err != nil {
		t.Fatalf("Failed to revoke token: %v", err)
	}
	if _, err := tokens.ValidateToken(ctx, plaintext); !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("Expected ErrTokenRevoked, got %v", err)
	}
	if err := tokens.RevokeToken(ctx, apiToken.ID); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("Expected ErrTokenNotFound on double revoke, got %v", err)
	}

	list, err := tokens.ListUserTokens(ctx, user.ID)
	if err != nil {
		t.Fatalf("Failed to list tokens: %v", err)
	}
	if len(list) != 1 || list[0].RevokedAt == nil {
		t.Errorf("Expected one revoked token, got %+v", list)
	}
}

func TestTokenManager_Expiry(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	users := NewUserStore(db)
	tokens := NewTokenManager(db)

	user, err := users.CreateUser(ctx, "carol", "", nil)
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	past := time.Now().Add(-time.Hour)
	_, plaintext, err := tokens.CreateToken(ctx, user.ID, "expired", &past)
	if err != nil {
		t.Fatalf("Failed to create token: %v", err)
	}

	if _, err := tokens.ValidateToken(ctx, plaintext); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Expected ErrTokenExpired, got %v", err)
	}

	removed, err := tokens.CleanupExpiredTokens(ctx, time.Now())
	if err != nil {
		t.Fatalf("Failed to clean up: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 removed token, got %d", removed)
	}
}
