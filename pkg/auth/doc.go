// Package auth manages user accounts, their role assignments, and the
// API tokens used to authenticate requests. Role assignment is a
// comma-joined id list on the user record; token plaintext is shown once
// at creation and only its SHA-256 hash is stored.
package auth
