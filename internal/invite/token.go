// Package invite mints and verifies the bearer tokens embedded in signing
// links. Tokens are stateless: the document id, the invited channel and the
// issue time travel inside the token.
package invite

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/StudioVBG/TALOK-sub014/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

type Format string

const (
	FormatSealed Format = "sealed"
	FormatLegacy Format = "legacy"
)

const maxClockSkew = 5 * time.Minute

// Invitation is the decoded content of a valid token.
type Invitation struct {
	DocumentID string
	Channel    string
	IssuedAt   time.Time
	Format     Format
}

type claims struct {
	DocumentID string `json:"doc"`
	Channel    string `json:"ch"`
	jwt.RegisteredClaims
}

type legacyPayload struct {
	DocumentID string `json:"document_id"`
	Email      string `json:"email"`
	TS         int64  `json:"ts"`
}

type Config struct {
	Secret []byte
	// AcceptLegacy enables the unsealed decoder. Legacy links carry no MAC,
	// so they are only honoured when issued before LegacyCutoff.
	AcceptLegacy bool
	LegacyCutoff time.Time
}

type Service struct {
	cfg Config
	now func() time.Time
}

func NewService(cfg Config) (*Service, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("invitation secret must be at least 32 bytes")
	}
	return &Service{cfg: cfg, now: func() time.Time { return time.Now().UTC() }}, nil
}

// WithClock replaces the time source; used by tests and tools.
func (s *Service) WithClock(now func() time.Time) *Service {
	cp := *s
	cp.now = now
	return &cp
}

func (s *Service) Issue(documentID, channel string) (string, error) {
	documentID = strings.TrimSpace(documentID)
	channel = domain.NormalizeChannel(channel)
	if documentID == "" || channel == "" {
		return "", errors.New("document id and channel are required")
	}
	c := claims{
		DocumentID: documentID,
		Channel:    channel,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(s.now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.cfg.Secret)
}

// Verify decodes token and checks its age against maxAgeDays. Any failure
// (malformed, tampered, expired, disabled legacy) yields ok=false with no
// further detail.
func (s *Service) Verify(token string, maxAgeDays int) (Invitation, bool) {
	token = strings.TrimSpace(token)
	if token == "" || maxAgeDays <= 0 {
		return Invitation{}, false
	}

	inv, sealed, ok := s.decodeSealed(token)
	if !sealed {
		inv, ok = s.decodeLegacy(token)
	}
	if !ok {
		return Invitation{}, false
	}

	now := s.now()
	if inv.IssuedAt.After(now.Add(maxClockSkew)) {
		return Invitation{}, false
	}
	if now.Sub(inv.IssuedAt) > time.Duration(maxAgeDays)*24*time.Hour {
		return Invitation{}, false
	}
	if inv.DocumentID == "" || inv.Channel == "" {
		return Invitation{}, false
	}
	return inv, true
}

// decodeSealed reports sealed=true as soon as the token is a structurally
// valid JWS; a bad MAC then fails without falling back to the legacy path.
func (s *Service) decodeSealed(token string) (Invitation, bool, bool) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		return s.cfg.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return Invitation{}, false, false
		}
		return Invitation{}, true, false
	}
	if !parsed.Valid || c.IssuedAt == nil {
		return Invitation{}, true, false
	}
	return Invitation{
		DocumentID: strings.TrimSpace(c.DocumentID),
		Channel:    domain.NormalizeChannel(c.Channel),
		IssuedAt:   c.IssuedAt.Time.UTC(),
		Format:     FormatSealed,
	}, true, true
}

func (s *Service) decodeLegacy(token string) (Invitation, bool) {
	if !s.cfg.AcceptLegacy {
		return Invitation{}, false
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(token, "="))
	if err != nil {
		return Invitation{}, false
	}
	var p legacyPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Invitation{}, false
	}
	if p.TS <= 0 {
		return Invitation{}, false
	}
	issuedAt := time.UnixMilli(p.TS).UTC()
	if s.cfg.LegacyCutoff.IsZero() || !issuedAt.Before(s.cfg.LegacyCutoff) {
		return Invitation{}, false
	}
	return Invitation{
		DocumentID: strings.TrimSpace(p.DocumentID),
		Channel:    domain.NormalizeChannel(p.Email),
		IssuedAt:   issuedAt,
		Format:     FormatLegacy,
	}, true
}

// EncodeLegacy produces a token in the unsealed format. It exists for
// migration tooling and tests; new links are always sealed.
func EncodeLegacy(documentID, email string, issuedAt time.Time) string {
	b, _ := json.Marshal(legacyPayload{DocumentID: documentID, Email: email, TS: issuedAt.UnixMilli()})
	return base64.RawURLEncoding.EncodeToString(b)
}
