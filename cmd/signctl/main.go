package main

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/StudioVBG/TALOK-sub014/internal/app"
	"github.com/StudioVBG/TALOK-sub014/internal/config"
	"github.com/StudioVBG/TALOK-sub014/internal/domain"
	"github.com/StudioVBG/TALOK-sub014/internal/invite"
	"github.com/StudioVBG/TALOK-sub014/internal/proof"
	"github.com/StudioVBG/TALOK-sub014/pkg/logger"
	"github.com/StudioVBG/TALOK-sub014/pkg/signature"

	"github.com/spf13/pflag"
)

const usage = "usage: signctl issue-token --document <id> --email <addr> | signctl verify-token --token <t> | signctl verify-proof --proof <path> [--public-key <b64>] | signctl backfill-proofs [--limit n] | signctl purge-otp [--older-than d] | signctl recompute --document <id>"

func main() {
	if len(os.Args) < 2 {
		fail("", usage)
		os.Exit(2)
	}
	cmd := os.Args[1]
	args := os.Args[2:]
	var code int
	switch cmd {
	case "issue-token":
		code = runTokenIssue(args)
	case "verify-token":
		code = runTokenVerify(args)
	case "verify-proof":
		code = runProofVerify(args)
	case "backfill-proofs":
		code = runProofBackfill(args)
	case "purge-otp":
		code = runOTPPurge(args)
	case "recompute":
		code = runRecompute(args)
	default:
		fail(cmd, usage)
		code = 2
	}
	os.Exit(code)
}

func newFlags(name string) (*pflag.FlagSet, *string) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	cfgPath := fs.StringP("config", "c", os.Getenv("COSIGN_CONFIG"), "path to the YAML configuration file")
	return fs, cfgPath
}

func tokenService(cfg config.Config) (*invite.Service, error) {
	cutoff, err := cfg.Tokens.Cutoff()
	if err != nil {
		return nil, err
	}
	return invite.NewService(invite.Config{
		Secret:       []byte(cfg.Tokens.Secret),
		AcceptLegacy: cfg.Tokens.AcceptLegacy,
		LegacyCutoff: cutoff,
	})
}

func runTokenIssue(args []string) int {
	const cmd = "issue-token"
	fs, cfgPath := newFlags(cmd)
	documentID := fs.String("document", "", "document id")
	email := fs.String("email", "", "invited email address")
	if err := fs.Parse(args); err != nil {
		fail(cmd, err.Error())
		return 2
	}
	if strings.TrimSpace(*documentID) == "" || strings.TrimSpace(*email) == "" {
		fail(cmd, "both --document and --email are required")
		return 2
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fail(cmd, err.Error())
		return 1
	}
	tokens, err := tokenService(cfg)
	if err != nil {
		fail(cmd, err.Error())
		return 1
	}
	tok, err := tokens.Issue(*documentID, *email)
	if err != nil {
		fail(cmd, err.Error())
		return 1
	}
	out := map[string]any{"document_id": *documentID, "token": tok}
	if base := strings.TrimRight(cfg.Signing.LinkBaseURL, "/"); base != "" {
		out["link"] = base + "/invite/" + tok
	}
	pass(cmd, out)
	return 0
}

func runTokenVerify(args []string) int {
	const cmd = "verify-token"
	fs, cfgPath := newFlags(cmd)
	token := fs.String("token", "", "invitation token")
	if err := fs.Parse(args); err != nil {
		fail(cmd, err.Error())
		return 2
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fail(cmd, err.Error())
		return 1
	}
	tokens, err := tokenService(cfg)
	if err != nil {
		fail(cmd, err.Error())
		return 1
	}
	inv, ok := tokens.Verify(*token, cfg.Tokens.MaxAgeDays)
	if !ok {
		fail(cmd, "invalid or expired invitation")
		return 1
	}
	pass(cmd, map[string]any{
		"document_id": inv.DocumentID,
		"channel":     domain.MaskEmail(inv.Channel),
		"issued_at":   inv.IssuedAt.Format(time.RFC3339),
		"format":      inv.Format,
	})
	return 0
}

func runProofVerify(args []string) int {
	const cmd = "verify-proof"
	fs, cfgPath := newFlags(cmd)
	proofPath := fs.String("proof", "", "path to a signature proof json")
	pubKey := fs.String("public-key", "", "base64 ed25519 public key (defaults to the configured signing key)")
	if err := fs.Parse(args); err != nil {
		fail(cmd, err.Error())
		return 2
	}
	if strings.TrimSpace(*proofPath) == "" {
		fail(cmd, "--proof is required")
		return 2
	}
	b, err := os.ReadFile(*proofPath)
	if err != nil {
		fail(cmd, "read proof failed: "+err.Error())
		return 1
	}
	var p domain.SignatureProof
	if err := json.Unmarshal(b, &p); err != nil {
		fail(cmd, "decode proof failed: "+err.Error())
		return 1
	}

	var key ed25519.PublicKey
	if strings.TrimSpace(*pubKey) != "" {
		raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(*pubKey))
		if err != nil || len(raw) != ed25519.PublicKeySize {
			fail(cmd, "--public-key must be a base64 ed25519 public key")
			return 2
		}
		key = raw
	} else {
		cfg, err := config.Load(*cfgPath)
		if err != nil {
			fail(cmd, err.Error())
			return 1
		}
		if cfg.Proof.SigningKeySeed == "" {
			fail(cmd, "no --public-key and no proof.signing_key_seed configured")
			return 2
		}
		s, err := signature.NewSignerFromSeed(cfg.Proof.SigningKeySeed, cfg.Proof.KeyID)
		if err != nil {
			fail(cmd, err.Error())
			return 1
		}
		key = s.PublicKey()
	}

	if err := proof.Verify(p, key); err != nil {
		fail(cmd, err.Error())
		return 1
	}
	pass(cmd, map[string]any{"proof_id": p.ProofID, "document_id": p.DocumentID, "signer_id": p.SignerID, "content_hash": p.ContentHash})
	return 0
}

func runProofBackfill(args []string) int {
	const cmd = "backfill-proofs"
	fs, cfgPath := newFlags(cmd)
	limit := fs.Int("limit", 100, "maximum number of signed records to process")
	if err := fs.Parse(args); err != nil {
		fail(cmd, err.Error())
		return 2
	}
	a, code := openApp(cmd, *cfgPath)
	if a == nil {
		return code
	}
	defer a.Close()
	rep, err := a.Backfill.Run(context.Background(), *limit)
	if err != nil {
		fail(cmd, err.Error())
		return 1
	}
	pass(cmd, map[string]any{"scanned": rep.Scanned, "attached": rep.Attached, "skipped": rep.Skipped, "failed": rep.Failed})
	if rep.Failed > 0 {
		return 1
	}
	return 0
}

func runOTPPurge(args []string) int {
	const cmd = "purge-otp"
	fs, cfgPath := newFlags(cmd)
	olderThan := fs.Duration("older-than", 24*time.Hour, "purge challenges that expired at least this long ago")
	if err := fs.Parse(args); err != nil {
		fail(cmd, err.Error())
		return 2
	}
	a, code := openApp(cmd, *cfgPath)
	if a == nil {
		return code
	}
	defer a.Close()
	n, err := a.PurgeChallenges(context.Background(), *olderThan)
	if err != nil {
		fail(cmd, err.Error())
		return 1
	}
	pass(cmd, map[string]any{"purged": n})
	return 0
}

func runRecompute(args []string) int {
	const cmd = "recompute"
	fs, cfgPath := newFlags(cmd)
	documentID := fs.String("document", "", "document id")
	if err := fs.Parse(args); err != nil {
		fail(cmd, err.Error())
		return 2
	}
	if strings.TrimSpace(*documentID) == "" {
		fail(cmd, "--document is required")
		return 2
	}
	a, code := openApp(cmd, *cfgPath)
	if a == nil {
		return code
	}
	defer a.Close()
	tr, failed, err := a.Signing.Reconcile(context.Background(), *documentID, "signctl-recompute")
	if err != nil {
		fail(cmd, err.Error())
		return 1
	}
	pass(cmd, map[string]any{
		"document_id": *documentID,
		"from":        tr.From,
		"status":      tr.To,
		"changed":     tr.Changed,
		"failed":      failed,
	})
	if len(failed) > 0 {
		return 1
	}
	return 0
}

func openApp(cmd, cfgPath string) (*app.App, int) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fail(cmd, err.Error())
		return nil, 1
	}
	a, err := app.New(context.Background(), cfg, logger.New(cfg.Log, os.Stderr))
	if err != nil {
		fail(cmd, err.Error())
		return nil, 1
	}
	return a, 0
}

func pass(cmd string, fields map[string]any) {
	summary(cmd, "PASS", fields)
}

func fail(cmd, reason string) {
	summary(cmd, "FAIL", map[string]any{"reason": reason})
}

func summary(cmd, status string, fields map[string]any) {
	out := map[string]any{"command": cmd, "status": status, "timestamp_utc": time.Now().UTC().Format(time.RFC3339)}
	for k, v := range fields {
		out[k] = v
	}
	b, _ := json.Marshal(out)
	fmt.Println(string(b))
}
