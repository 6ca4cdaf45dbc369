// Package signing sequences one invitee through preview, challenge and
// signature, and runs the post-commit side effects of each signature.
package signing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/StudioVBG/TALOK-sub014/internal/domain"
	"github.com/StudioVBG/TALOK-sub014/internal/invite"
	"github.com/StudioVBG/TALOK-sub014/internal/lifecycle"
	"github.com/StudioVBG/TALOK-sub014/internal/otp"
	"github.com/StudioVBG/TALOK-sub014/internal/proof"
	"github.com/StudioVBG/TALOK-sub014/internal/signers"
	"github.com/StudioVBG/TALOK-sub014/pkg/logger"

	"github.com/oklog/ulid/v2"
)

const (
	defaultMaxAgeDays    = 30
	defaultSignedURLTTL  = 15 * time.Minute
	defaultTaskTimeout   = 5 * time.Second
	defaultMaxImageBytes = 2 << 20
)

// Deps are the collaborators of the orchestrator. Notifier, Objects and
// Audit may be nil; their tasks are then skipped.
type Deps struct {
	Tokens    *invite.Service
	OTP       *otp.Service
	Directory *signers.Directory
	Proofs    *proof.Generator
	Lifecycle *lifecycle.Aggregator
	Documents domain.DocumentRepository
	Signers   domain.SignerRepository
	Objects   domain.ObjectStore
	Notifier  domain.Notifier
	Audit     domain.AuditLog
	Log       *slog.Logger
}

type Config struct {
	MaxAgeDays    int
	SignedURLTTL  time.Duration
	TaskTimeout   time.Duration
	MaxImageBytes int
	// LinkBaseURL prefixes /invite/{token} in invitation links.
	LinkBaseURL string
	// ExposeOTP echoes issued codes in RequestOTP results. Development only.
	ExposeOTP bool
}

type Service struct {
	deps Deps
	cfg  Config
	now  func() time.Time
}

func New(deps Deps, cfg Config) (*Service, error) {
	switch {
	case deps.Tokens == nil:
		return nil, errors.New("token service is required")
	case deps.OTP == nil:
		return nil, errors.New("otp service is required")
	case deps.Directory == nil:
		return nil, errors.New("signer directory is required")
	case deps.Lifecycle == nil:
		return nil, errors.New("lifecycle aggregator is required")
	case deps.Documents == nil || deps.Signers == nil:
		return nil, errors.New("document and signer repositories are required")
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = defaultMaxAgeDays
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = defaultSignedURLTTL
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = defaultTaskTimeout
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = defaultMaxImageBytes
	}
	cfg.LinkBaseURL = strings.TrimRight(cfg.LinkBaseURL, "/")
	return &Service{deps: deps, cfg: cfg, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Service) WithClock(now func() time.Time) *Service {
	cp := *s
	cp.now = now
	return &cp
}

// MaxAgeDays is the invitation lifetime used for every token check.
func (s *Service) MaxAgeDays() int { return s.cfg.MaxAgeDays }

// invitation verifies the token and loads the document it addresses. An
// unknown document is indistinguishable from a bad token.
func (s *Service) invitation(ctx context.Context, token string) (invite.Invitation, domain.Document, error) {
	inv, ok := s.deps.Tokens.Verify(token, s.cfg.MaxAgeDays)
	if !ok {
		return invite.Invitation{}, domain.Document{}, domain.ErrInvalidOrExpiredToken
	}
	doc, err := s.deps.Documents.GetDocument(ctx, inv.DocumentID)
	if err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) || errors.Is(err, domain.ErrNotFound) {
			return invite.Invitation{}, domain.Document{}, domain.ErrInvalidOrExpiredToken
		}
		return invite.Invitation{}, domain.Document{}, fmt.Errorf("load document: %w", err)
	}
	return inv, doc, nil
}

func (s *Service) log(ctx context.Context, documentID string) *slog.Logger {
	return logger.From(logger.WithDocumentID(ctx, documentID), s.deps.Log)
}

func newEntryID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}
