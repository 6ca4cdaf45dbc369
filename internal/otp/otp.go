// Package otp issues and verifies the short numeric codes that prove an
// invitee controls the invited contact channel.
package otp

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/StudioVBG/TALOK-sub014/internal/domain"
)

// Challenge is the stored half of an OTP; the plain code never leaves Issue.
type Challenge struct {
	DocumentID        string
	Channel           string
	CodeHash          string
	IssuedAt          time.Time
	ExpiresAt         time.Time
	RemainingAttempts int
	ConsumedAt        *time.Time
}

type AttemptOutcome int

const (
	// AttemptNoChallenge covers missing, expired, consumed and exhausted challenges.
	AttemptNoChallenge AttemptOutcome = iota
	AttemptMismatch
	AttemptConsumed
	// AttemptAlreadyConsumed is the right code submitted again after the
	// challenge was consumed. Nothing is decremented.
	AttemptAlreadyConsumed
)

// ChallengeStore persists challenges. Attempt is the compare-and-invalidate
// primitive: in one atomic step it either consumes a live challenge whose
// hash matches, or burns one attempt off it. A consumed challenge whose hash
// matches reports AttemptAlreadyConsumed.
type ChallengeStore interface {
	Put(ctx context.Context, ch Challenge) error
	Attempt(ctx context.Context, documentID, channel, codeHash string, now time.Time) (AttemptOutcome, error)
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// Sender delivers a code over the invited channel.
type Sender interface {
	SendCode(ctx context.Context, channel, code string, expiresAt time.Time) error
}

type Result struct {
	Valid bool
	// Reused is set when the code was correct but already spent by an
	// earlier submission.
	Reused bool
}

type Config struct {
	Length      int
	TTL         time.Duration
	MaxAttempts int
	// Pepper keys the stored code hash so a leaked table cannot be brute-forced offline.
	Pepper []byte
}

type Service struct {
	store  ChallengeStore
	sender Sender
	cfg    Config
	now    func() time.Time
}

func NewService(store ChallengeStore, sender Sender, cfg Config) (*Service, error) {
	if store == nil {
		return nil, errors.New("otp challenge store is required")
	}
	if len(cfg.Pepper) == 0 {
		return nil, errors.New("otp pepper is required")
	}
	if cfg.Length <= 0 {
		cfg.Length = 6
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Service{store: store, sender: sender, cfg: cfg, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Service) WithClock(now func() time.Time) *Service {
	cp := *s
	cp.now = now
	return &cp
}

func (s *Service) TTL() time.Duration { return s.cfg.TTL }

// Issue replaces any live challenge for (documentID, channel) and hands the
// code to the Sender. The returned code is for dev-mode echo only.
func (s *Service) Issue(ctx context.Context, documentID, channel string) (string, time.Time, error) {
	channel = domain.NormalizeChannel(channel)
	code, err := RandomCode(s.cfg.Length)
	if err != nil {
		return "", time.Time{}, err
	}
	now := s.now()
	ch := Challenge{
		DocumentID:        documentID,
		Channel:           channel,
		CodeHash:          s.hash(documentID, channel, code),
		IssuedAt:          now,
		ExpiresAt:         now.Add(s.cfg.TTL),
		RemainingAttempts: s.cfg.MaxAttempts,
	}
	if err := s.store.Put(ctx, ch); err != nil {
		return "", time.Time{}, fmt.Errorf("store otp challenge: %w", err)
	}
	if s.sender != nil {
		if err := s.sender.SendCode(ctx, channel, code, ch.ExpiresAt); err != nil {
			return "", time.Time{}, fmt.Errorf("send otp: %w", err)
		}
	}
	return code, ch.ExpiresAt, nil
}

// Verify consumes the challenge on a correct code. The error return is for
// storage failures only.
func (s *Service) Verify(ctx context.Context, documentID, channel, code string) (Result, error) {
	channel = domain.NormalizeChannel(channel)
	code = strings.TrimSpace(code)
	if !wellFormed(code, s.cfg.Length) {
		// Malformed input still costs an attempt so it cannot be used to probe.
		code = strings.Repeat("x", s.cfg.Length)
	}
	out, err := s.store.Attempt(ctx, documentID, channel, s.hash(documentID, channel, code), s.now())
	if err != nil {
		return Result{}, fmt.Errorf("verify otp: %w", err)
	}
	return Result{Valid: out == AttemptConsumed, Reused: out == AttemptAlreadyConsumed}, nil
}

func (s *Service) hash(documentID, channel, code string) string {
	mac := hmac.New(sha256.New, s.cfg.Pepper)
	_, _ = mac.Write([]byte(documentID + "\n" + channel + "\n" + code))
	return hex.EncodeToString(mac.Sum(nil))
}

func wellFormed(code string, length int) bool {
	if len(code) != length {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// RandomCode returns a zero-padded numeric code drawn uniformly from crypto/rand.
func RandomCode(length int) (string, error) {
	if length <= 0 || length > 12 {
		return "", fmt.Errorf("otp length %d out of range", length)
	}
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", length, n), nil
}
