// Package share issues signed, revocable links that expose a user's
// prediction read-only.
package share

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer   = "cycle-tracker"
	audience = "shared-prediction"
)

// ErrInvalidToken covers malformed, expired, tampered and revoked tokens.
var ErrInvalidToken = errors.New("invalid share token")

// Claims identifies whose prediction a token grants access to.
type Claims struct {
	UserID    string
	ID        string
	ExpiresAt time.Time
}

// Issuer signs and verifies share tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	db     *sql.DB
	now    func() time.Time
}

// NewIssuer creates an Issuer. db holds the revocation list.
func NewIssuer(secret string, ttl time.Duration, db *sql.DB) *Issuer {
	return &Issuer{
		secret: []byte(secret),
		ttl:    ttl,
		db:     db,
		now:    time.Now,
	}
}

// Issue generates a token for userID that expires after the configured TTL.
func (i *Issuer) Issue(userID string) (string, Claims, error) {
	if userID == "" {
		return "", Claims{}, fmt.Errorf("user id is required")
	}

	now := i.now()
	claims := Claims{
		UserID:    userID,
		ID:        uuid.NewString(),
		ExpiresAt: now.Add(i.ttl).Truncate(time.Second),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   userID,
		Audience:  jwt.ClaimStrings{audience},
		ID:        claims.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", Claims{}, fmt.Errorf("failed to sign share token: %w", err)
	}
	return signed, claims, nil
}

// Verify checks the signature, expiry and revocation list.
func (i *Issuer) Verify(ctx context.Context, raw string) (Claims, error) {
	var rc jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &rc, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if rc.Subject == "" || rc.ID == "" {
		return Claims{}, fmt.Errorf("%w: missing subject or id", ErrInvalidToken)
	}

	revoked, err := i.isRevoked(ctx, rc.ID)
	if err != nil {
		return Claims{}, err
	}
	if revoked {
		return Claims{}, fmt.Errorf("%w: revoked", ErrInvalidToken)
	}

	return Claims{UserID: rc.Subject, ID: rc.ID, ExpiresAt: rc.ExpiresAt.Time}, nil
}

// Revoke blocks a previously issued token until it would have expired.
func (i *Issuer) Revoke(ctx context.Context, c Claims) error {
	_, err := i.db.ExecContext(ctx, `
		INSERT INTO revoked_shares (jti, user_id, expires_at, revoked_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (jti) DO NOTHING`,
		c.ID, c.UserID, c.ExpiresAt.Unix(), i.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to revoke share %s: %w", c.ID, err)
	}
	return nil
}

// PurgeExpired drops revocations for tokens that have expired anyway.
func (i *Issuer) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := i.db.ExecContext(ctx, `DELETE FROM revoked_shares WHERE expires_at < ?`, i.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired revocations: %w", err)
	}
	return res.RowsAffected()
}

func (i *Issuer) isRevoked(ctx context.Context, jti string) (bool, error) {
	var one int
	err := i.db.QueryRowContext(ctx, `SELECT 1 FROM revoked_shares WHERE jti = ?`, jti).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}
	return true, nil
}
