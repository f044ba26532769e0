package gallery

import (
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/clubsite/internal/records"
	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultConfirmationTTL = 10 * time.Minute
	confirmationIssuer     = "clubsite"
	confirmationAudience   = "clubsite-delete"
)

var (
	// ErrMissingSigningSecret indicates the confirmer was built without a secret.
	ErrMissingSigningSecret = errors.New("gallery: confirmation signing secret required")
	// ErrInvalidConfirmation indicates a missing, forged, expired or mismatched token.
	ErrInvalidConfirmation = errors.New("gallery: invalid delete confirmation")
)

// ConfirmerConfig configures delete-confirmation tokens.
type ConfirmerConfig struct {
	SigningSecret []byte
	TTL           time.Duration
	Clock         func() time.Time
}

// Confirmer issues and checks short-lived HS256 tokens naming the one record a
// visitor acknowledged deleting.
type Confirmer struct {
	secret []byte
	ttl    time.Duration
	clock  func() time.Time
}

// NewConfirmer constructs a Confirmer with sane defaults.
func NewConfirmer(cfg ConfirmerConfig) (*Confirmer, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSigningSecret
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultConfirmationTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Confirmer{
		secret: append([]byte(nil), cfg.SigningSecret...),
		ttl:    ttl,
		clock:  clock,
	}, nil
}

func confirmationSubject(table records.Table, id records.RecordID) string {
	return table.String() + ":" + id.String()
}

// Issue signs a token for deleting one record.
func (c *Confirmer) Issue(table records.Table, id records.RecordID) (string, time.Time, error) {
	now := c.clock().UTC()
	expiresAt := now.Add(c.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   confirmationSubject(table, id),
		Issuer:    confirmationIssuer,
		Audience:  []string{confirmationAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify ensures the token was issued for exactly this record and is unexpired.
func (c *Confirmer) Verify(token string, table records.Table, id records.RecordID) error {
	if token == "" {
		return ErrInvalidConfirmation
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(
		token,
		claims,
		func(parsed *jwt.Token) (interface{}, error) {
			if parsed.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm: %s", parsed.Method.Alg())
			}
			return c.secret, nil
		},
		jwt.WithAudience(confirmationAudience),
		jwt.WithIssuer(confirmationIssuer),
		jwt.WithTimeFunc(c.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfirmation, err)
	}
	if claims.Subject != confirmationSubject(table, id) {
		return ErrInvalidConfirmation
	}
	return nil
}
