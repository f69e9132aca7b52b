package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/khuboolhai/chat-service/internal/match"
)

// Profile is a user's matrimony profile: the display attributes other
// users see plus the stated partner preferences the comparator consumes.
type Profile struct {
	ID            string
	UserID        string
	FullName      string
	Gender        string
	DateOfBirth   string
	Religion      string
	MaritalStatus string
	MotherTongue  string
	Diet          string
	State         string
	City          string
	Complexion    string
	PhotoURL      string
	Preferences   match.PreferenceProfile
}

// Candidate converts the profile into the comparator's candidate shape.
func (p *Profile) Candidate() match.CandidateProfile {
	return match.CandidateProfile{
		ProfileID:     p.ID,
		Gender:        p.Gender,
		DateOfBirth:   p.DateOfBirth,
		Religion:      p.Religion,
		MaritalStatus: p.MaritalStatus,
		MotherTongue:  p.MotherTongue,
		Diet:          p.Diet,
		State:         p.State,
		City:          p.City,
		Complexion:    p.Complexion,
	}
}

// MatchPreferences returns the profile's partner preferences with the
// owner's gender attached for the opposite-gender gate.
func (p *Profile) MatchPreferences() match.PreferenceProfile {
	prefs := p.Preferences
	prefs.Gender = p.Gender
	return prefs
}

const profileColumns = `id, user_id, full_name, gender, date_of_birth, religion,
	marital_status, mother_tongue, diet, state, city, complexion, photo_url,
	partner_preferences`

// prefixedProfileColumns qualifies every profile column with a table
// alias, for queries that join profiles against another table.
func prefixedProfileColumns(alias string) string {
	cols := strings.Split(profileColumns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

// GetProfile fetches a profile by its profile ID.
func (s *Store) GetProfile(ctx context.Context, id string) (*Profile, error) {
	const query = `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`
	return s.queryProfile(ctx, query, id)
}

// GetProfileByUser fetches the profile owned by the given user identity.
func (s *Store) GetProfileByUser(ctx context.Context, userID string) (*Profile, error) {
	const query = `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1`
	return s.queryProfile(ctx, query, userID)
}

// ListProfiles fetches the profiles with the given IDs. Unknown IDs are
// simply absent from the result.
func (s *Store) ListProfiles(ctx context.Context, ids []string) ([]Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	const query = `SELECT ` + profileColumns + ` FROM profiles WHERE id = ANY($1)`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("store: list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan profile: %w", err)
		}
		profiles = append(profiles, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list profiles: %w", err)
	}
	return profiles, nil
}

// UpsertProfile writes a profile row; used by seeding and tests. Profile
// CRUD proper belongs to the external profile service.
func (s *Store) UpsertProfile(ctx context.Context, p *Profile) error {
	prefs, err := json.Marshal(p.Preferences)
	if err != nil {
		return fmt.Errorf("store: marshal preferences: %w", err)
	}

	const query = `
		INSERT INTO profiles (id, user_id, full_name, gender, date_of_birth, religion,
			marital_status, mother_tongue, diet, state, city, complexion, photo_url,
			partner_preferences)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (user_id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			gender = EXCLUDED.gender,
			date_of_birth = EXCLUDED.date_of_birth,
			religion = EXCLUDED.religion,
			marital_status = EXCLUDED.marital_status,
			mother_tongue = EXCLUDED.mother_tongue,
			diet = EXCLUDED.diet,
			state = EXCLUDED.state,
			city = EXCLUDED.city,
			complexion = EXCLUDED.complexion,
			photo_url = EXCLUDED.photo_url,
			partner_preferences = EXCLUDED.partner_preferences`

	if _, err := s.db.ExecContext(ctx, query, p.ID, p.UserID, p.FullName, p.Gender,
		p.DateOfBirth, p.Religion, p.MaritalStatus, p.MotherTongue, p.Diet,
		p.State, p.City, p.Complexion, p.PhotoURL, prefs); err != nil {
		return fmt.Errorf("store: upsert profile: %w", err)
	}
	return nil
}

func (s *Store) queryProfile(ctx context.Context, query string, arg interface{}) (*Profile, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get profile: %w", err)
	}
	return p, nil
}

func scanProfile(r rowScanner) (*Profile, error) {
	var p Profile
	var prefs []byte
	if err := r.Scan(&p.ID, &p.UserID, &p.FullName, &p.Gender, &p.DateOfBirth,
		&p.Religion, &p.MaritalStatus, &p.MotherTongue, &p.Diet, &p.State,
		&p.City, &p.Complexion, &p.PhotoURL, &prefs); err != nil {
		return nil, err
	}
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &p.Preferences); err != nil {
			return nil, fmt.Errorf("decode preferences: %w", err)
		}
	}
	return &p, nil
}
