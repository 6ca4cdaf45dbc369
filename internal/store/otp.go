package store

import (
	"context"
	"errors"
	"time"

	"github.com/StudioVBG/TALOK-sub014/internal/otp"

	"github.com/jackc/pgx/v5"
)

// Put replaces any earlier challenge for the same document and channel.
func (s *Store) Put(ctx context.Context, ch otp.Challenge) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO cosign_otp_challenges(document_id,channel,code_hash,issued_at,expires_at,remaining_attempts,consumed_at)
VALUES($1,$2,$3,$4,$5,$6,NULL)
ON CONFLICT (document_id,channel) DO UPDATE
SET code_hash=EXCLUDED.code_hash, issued_at=EXCLUDED.issued_at, expires_at=EXCLUDED.expires_at,
    remaining_attempts=EXCLUDED.remaining_attempts, consumed_at=NULL
`, ch.DocumentID, ch.Channel, ch.CodeHash, ch.IssuedAt.UTC(), ch.ExpiresAt.UTC(), ch.RemainingAttempts)
	return err
}

// Attempt consumes or decrements a live challenge in a single statement, so
// two concurrent submissions of the right code cannot both succeed.
func (s *Store) Attempt(ctx context.Context, documentID, channel, codeHash string, now time.Time) (otp.AttemptOutcome, error) {
	var consumed bool
	err := s.DB.QueryRow(ctx, `
UPDATE cosign_otp_challenges
SET consumed_at = CASE WHEN code_hash=$3 THEN $4 ELSE consumed_at END,
    remaining_attempts = CASE WHEN code_hash=$3 THEN remaining_attempts ELSE remaining_attempts-1 END
WHERE document_id=$1 AND channel=$2
  AND consumed_at IS NULL AND remaining_attempts>0 AND expires_at>$4
RETURNING consumed_at IS NOT NULL
`, documentID, channel, codeHash, now.UTC()).Scan(&consumed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s.consumedAttempt(ctx, documentID, channel, codeHash)
		}
		return otp.AttemptNoChallenge, err
	}
	if consumed {
		return otp.AttemptConsumed, nil
	}
	return otp.AttemptMismatch, nil
}

// consumedAttempt distinguishes a resubmitted correct code from a dead
// challenge once the conditional update matched nothing.
func (s *Store) consumedAttempt(ctx context.Context, documentID, channel, codeHash string) (otp.AttemptOutcome, error) {
	var reused bool
	err := s.DB.QueryRow(ctx, `
SELECT consumed_at IS NOT NULL AND code_hash=$3
FROM cosign_otp_challenges
WHERE document_id=$1 AND channel=$2
`, documentID, channel, codeHash).Scan(&reused)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return otp.AttemptNoChallenge, nil
		}
		return otp.AttemptNoChallenge, err
	}
	if reused {
		return otp.AttemptAlreadyConsumed, nil
	}
	return otp.AttemptNoChallenge, nil
}

// Purge deletes challenges that expired or were consumed before the cutoff.
func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.DB.Exec(ctx, `
DELETE FROM cosign_otp_challenges
WHERE expires_at < $1 OR consumed_at < $1 OR remaining_attempts <= 0
`, before.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
