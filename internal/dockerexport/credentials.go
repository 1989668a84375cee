package dockerexport

import (
	"crypto/rand"
	"encoding/base64"

	"golang.org/x/crypto/bcrypt"

	"github.com/spindb/spindb/internal/apperrors"
)

// Credentials is the generated superuser username/password pair written into
// the exported .env. No suitable third-party secure-random generator exists
// in the corpus beyond the stdlib primitive itself; only the subsequent
// hashing step uses an ecosystem library (see DESIGN.md).
type Credentials struct {
	Username string
	Password string

	// HtpasswdHash is a bcrypt hash of Password, written into the .env as
	// SPINDB_EXPORT_HTPASSWD_HASH for every engine.
	HtpasswdHash string
}

// generateCredentials picks a random password for username and bcrypt-hashes
// it for the .env's htpasswd-style hash entry.
func generateCredentials(username string) (Credentials, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return Credentials{}, apperrors.Wrap(err)
	}
	password := base64.RawURLEncoding.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Credentials{}, apperrors.Wrap(err)
	}

	return Credentials{
		Username:     username,
		Password:     password,
		HtpasswdHash: string(hash),
	}, nil
}
