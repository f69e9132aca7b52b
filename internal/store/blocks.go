package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ErrAlreadyBlocked reports a duplicate block of the same profile.
var ErrAlreadyBlocked = errors.New("store: profile already blocked")

// uniqueViolation is the Postgres error code for unique constraint hits.
const uniqueViolation = "23505"

// BlockProfile records that blockerID blocked the given profile. Blocking
// twice is an error so the API can answer 409.
func (s *Store) BlockProfile(ctx context.Context, blockerID, profileID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blocks (id, blocker_id, blocked_profile_id) VALUES ($1, $2, $3)`,
		uuid.New().String(), blockerID, profileID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrAlreadyBlocked
		}
		return fmt.Errorf("store: block profile: %w", err)
	}
	return nil
}

// UnblockProfile removes a block. Removing a block that does not exist is
// a no-op.
func (s *Store) UnblockProfile(ctx context.Context, blockerID, profileID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM blocks WHERE blocker_id = $1 AND blocked_profile_id = $2`,
		blockerID, profileID)
	if err != nil {
		return fmt.Errorf("store: unblock profile: %w", err)
	}
	return nil
}

// IsBlocked reports whether blockerID has blocked the given profile.
func (s *Store) IsBlocked(ctx context.Context, blockerID, profileID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM blocks WHERE blocker_id = $1 AND blocked_profile_id = $2)`,
		blockerID, profileID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("store: check block: %w", err)
	}
	return exists, nil
}

// ListBlockedProfiles returns the profiles blockerID has blocked, most
// recently blocked first.
func (s *Store) ListBlockedProfiles(ctx context.Context, blockerID string) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM profiles p
		 JOIN blocks b ON b.blocked_profile_id = p.id
		 WHERE b.blocker_id = $1
		 ORDER BY b.created_at DESC`, prefixedProfileColumns("p")), blockerID)
	if err != nil {
		return nil, fmt.Errorf("store: list blocked profiles: %w", err)
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}
