// Package app assembles the signing runtime from a loaded configuration.
package app

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/StudioVBG/TALOK-sub014/internal/config"
	"github.com/StudioVBG/TALOK-sub014/internal/domain"
	"github.com/StudioVBG/TALOK-sub014/internal/httpapi"
	"github.com/StudioVBG/TALOK-sub014/internal/idempotency"
	"github.com/StudioVBG/TALOK-sub014/internal/invite"
	"github.com/StudioVBG/TALOK-sub014/internal/lifecycle"
	"github.com/StudioVBG/TALOK-sub014/internal/memstore"
	"github.com/StudioVBG/TALOK-sub014/internal/notify"
	"github.com/StudioVBG/TALOK-sub014/internal/objectstore"
	"github.com/StudioVBG/TALOK-sub014/internal/otp"
	"github.com/StudioVBG/TALOK-sub014/internal/proof"
	"github.com/StudioVBG/TALOK-sub014/internal/seed"
	"github.com/StudioVBG/TALOK-sub014/internal/signers"
	"github.com/StudioVBG/TALOK-sub014/internal/signing"
	"github.com/StudioVBG/TALOK-sub014/internal/store"
	"github.com/StudioVBG/TALOK-sub014/pkg/db"
	"github.com/StudioVBG/TALOK-sub014/pkg/signature"
)

// repository is what both persistence drivers provide.
type repository interface {
	domain.DocumentRepository
	domain.SignerRepository
	domain.ProofRepository
	domain.AuditLog
	signers.IdentityLookup
	idempotency.Store
}

type notifier interface {
	domain.Notifier
	otp.Sender
}

// App holds the wired components. Close releases the database pool, if any.
type App struct {
	Config     config.Config
	Log        *slog.Logger
	Repo       repository
	Challenges otp.ChallengeStore
	Tokens     *invite.Service
	OTP        *otp.Service
	Proofs     *proof.Generator
	Backfill   *proof.Backfiller
	Signing    *signing.Service

	closers []func()
}

func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}
	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	sc := a.Config.Store
	var fx *seed.Fixtures
	if strings.TrimSpace(sc.SeedFile) != "" {
		loaded, err := seed.ReadFile(sc.SeedFile)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		fx = &loaded
	}

	switch sc.Driver {
	case "memory":
		ms := memstore.New()
		if fx != nil {
			ms.Load(*fx)
		}
		a.Repo = ms
		a.Challenges = otp.NewMemoryStore()
		return nil
	case "postgres":
		pool, err := db.Connect(ctx, db.PoolConfig{DSN: sc.DSN, MaxConns: int32(sc.MaxConns)})
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		st := store.New(pool)
		if sc.AutoMigrate {
			if err := st.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		if fx != nil {
			if err := st.Import(ctx, *fx); err != nil {
				return fmt.Errorf("import seed: %w", err)
			}
		}
		a.Repo = st
		a.Challenges = st
		return nil
	default:
		return fmt.Errorf("unknown store driver %q", sc.Driver)
	}
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.Config
	cutoff, err := cfg.Tokens.Cutoff()
	if err != nil {
		return fmt.Errorf("tokens.legacy_cutoff: %w", err)
	}
	a.Tokens, err = invite.NewService(invite.Config{
		Secret:       []byte(cfg.Tokens.Secret),
		AcceptLegacy: cfg.Tokens.AcceptLegacy,
		LegacyCutoff: cutoff,
	})
	if err != nil {
		return err
	}

	n := a.notifier()
	a.OTP, err = otp.NewService(a.Challenges, n, otp.Config{
		Length:      cfg.OTP.Length,
		TTL:         cfg.OTP.TTL,
		MaxAttempts: cfg.OTP.MaxAttempts,
		Pepper:      []byte(cfg.OTP.Pepper),
	})
	if err != nil {
		return err
	}

	ps, err := a.proofSigner()
	if err != nil {
		return err
	}
	a.Proofs, err = proof.NewGenerator(ps, cfg.Proof.IdentityMethod)
	if err != nil {
		return err
	}
	a.Backfill = proof.NewBackfiller(a.Proofs, a.Repo, a.Repo, a.Log)

	objects, err := objectstore.Open(ctx, cfg.Objects)
	if err != nil {
		return fmt.Errorf("object store: %w", err)
	}

	a.Signing, err = signing.New(signing.Deps{
		Tokens:    a.Tokens,
		OTP:       a.OTP,
		Directory: signers.NewDirectory(a.Repo, a.Repo),
		Proofs:    a.Proofs,
		Lifecycle: lifecycle.NewAggregator(a.Repo, a.Repo, lifecycle.RolesPolicy{MinRoles: cfg.Signing.MinRoles}),
		Documents: a.Repo,
		Signers:   a.Repo,
		Objects:   objects,
		Notifier:  n,
		Audit:     a.Repo,
		Log:       a.Log,
	}, signing.Config{
		MaxAgeDays:    cfg.Tokens.MaxAgeDays,
		SignedURLTTL:  cfg.Signing.SignedURLTTL,
		TaskTimeout:   cfg.Signing.TaskTimeout,
		MaxImageBytes: cfg.Signing.MaxImageBytes,
		LinkBaseURL:   cfg.Signing.LinkBaseURL,
		ExposeOTP:     cfg.OTP.ExposeCodes,
	})
	return err
}

func (a *App) notifier() notifier {
	nc := a.Config.Notify
	if nc.Driver == "webhook" {
		return notify.NewWebhook(nc.URL, nc.Secret, nc.Timeout)
	}
	return notify.Log{Logger: a.Log, EchoCodes: a.Config.OTP.ExposeCodes}
}

// proofSigner uses the configured seed, or an ephemeral key whose proofs
// cannot be verified after restart.
func (a *App) proofSigner() (*signature.Signer, error) {
	pc := a.Config.Proof
	if strings.TrimSpace(pc.SigningKeySeed) != "" {
		return signature.NewSignerFromSeed(pc.SigningKeySeed, pc.KeyID)
	}
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	a.Log.Warn("proof signing key not configured; using an ephemeral key", "key_id", pc.KeyID)
	return signature.NewSigner(priv, pc.KeyID)
}

// Handler returns the HTTP surface of the runtime.
func (a *App) Handler() http.Handler {
	hc := a.Config.HTTP
	return httpapi.New(a.Signing, a.Repo, httpapi.Config{
		AdminToken:         hc.AdminToken,
		TrustProxy:         hc.TrustProxy,
		MaxBodyBytes:       hc.MaxBodyBytes,
		OTPPerIPPerMinute:  hc.OTPPerIPPerMinute,
		OTPPerTokenPerHour: hc.OTPPerTokenPerHour,
		SignPerIPPerMinute: hc.SignPerIPPerMinute,
	}, a.Log).Routes()
}

// PurgeChallenges drops challenges that expired more than olderThan ago.
func (a *App) PurgeChallenges(ctx context.Context, olderThan time.Duration) (int64, error) {
	if a.Challenges == nil {
		return 0, errors.New("no challenge store")
	}
	return a.Challenges.Purge(ctx, time.Now().UTC().Add(-olderThan))
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
