package auth

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// User is an administrable account. RoleIDs holds the comma-joined role
// id list stored on the user record.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	RoleIDs   []int64   `json:"role_ids"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Principal is the authenticated identity attached to a request
type Principal struct {
	UserID   int64   `json:"user_id"`
	Username string  `json:"username"`
	RoleIDs  []int64 `json:"role_ids"`
	TokenID  int64   `json:"token_id,omitempty"`
}

// APIToken is a stored bearer credential. Only the SHA-256 hash is
// persisted; the plaintext is shown once at creation.
type APIToken struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	TokenHash   string     `json:"-"`
	TokenPrefix string     `json:"token_prefix"`
	Name        string     `json:"name"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ParseRoleIDs parses a comma-joined role id list as stored on the user
// record. Blank segments are skipped; order is normalized and duplicates
// removed.
func ParseRoleIDs(joined string) ([]int64, error) {
	if strings.TrimSpace(joined) == "" {
		return nil, nil
	}

	seen := make(map[int64]bool)
	var ids []int64
	for _, part := range strings.Split(joined, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid role id %q: %w", part, err)
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// JoinRoleIDs renders a role id list to the stored comma-joined form
func JoinRoleIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
