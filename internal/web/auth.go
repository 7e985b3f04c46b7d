package web

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"faq-rag/internal/config"
)

type account struct {
	username string
	hash     []byte
	admin    bool
}

// Credentials verifies logins against the configured accounts.
type Credentials struct {
	accounts map[string]account
	// compared against for unknown users so both paths cost one bcrypt check
	decoy []byte
}

// NewCredentials hashes any plaintext passwords from the config once, at startup.
func NewCredentials(users []config.UserConfig) (*Credentials, error) {
	decoy, err := bcrypt.GenerateFromPassword([]byte("decoy-password"), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare credentials: %w", err)
	}
	creds := &Credentials{accounts: make(map[string]account, len(users)), decoy: decoy}
	for _, u := range users {
		hash := []byte(u.PasswordHash)
		if len(hash) == 0 {
			hash, err = bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
			if err != nil {
				return nil, fmt.Errorf("failed to hash password for %s: %w", u.Username, err)
			}
		} else if _, err := bcrypt.Cost(hash); err != nil {
			return nil, fmt.Errorf("invalid password_hash for %s: %w", u.Username, err)
		}
		creds.accounts[u.Username] = account{username: u.Username, hash: hash, admin: u.Admin}
	}
	return creds, nil
}

// Enabled is false when no accounts are configured; nobody can then log in
// as an administrator.
func (c *Credentials) Enabled() bool {
	return len(c.accounts) > 0
}

// Verify returns the admin flag of the account when the password matches.
func (c *Credentials) Verify(username, password string) (admin bool, ok bool) {
	acc, found := c.accounts[username]
	hash := c.decoy
	if found {
		hash = acc.hash
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil || !found {
		return false, false
	}
	return acc.admin, true
}

func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessionFrom(c)
		if sess == nil {
			abortWithError(c, NewHTTPError(http.StatusUnauthorized, "unauthorized", "please log in first", nil))
			return
		}
		user, admin := sess.identity()
		if user == "" {
			abortWithError(c, NewHTTPError(http.StatusUnauthorized, "unauthorized", "please log in first", nil))
			return
		}
		if !admin {
			abortWithError(c, NewHTTPError(http.StatusForbidden, "forbidden", "only administrators can rebuild the knowledge base", nil))
			return
		}
		c.Next()
	}
}
