// Package match computes weighted compatibility scores between one user's
// stated partner preferences and a candidate's profile attributes. Scores
// are derived fresh on every call and never cached: a score is a
// point-in-time value, not a stored fact.
package match

import (
	"fmt"
	"strings"
	"time"
)

// Per-dimension weights. The sum of weights actually evaluated for a pair
// forms the denominator, so absent dimensions never dilute the score.
const (
	WeightAge           = 15
	WeightReligion      = 20
	WeightMaritalStatus = 15
	WeightMotherTongue  = 10
	WeightDiet          = 10
	WeightState         = 15
	WeightCity          = 5
	WeightComplexion    = 10

	// AgeNearMissScore is awarded when the candidate's age falls outside
	// the preferred range but within AgeNearMissYears of its midpoint.
	AgeNearMissScore = 8
	AgeNearMissYears = 3
)

// AgeRange is an inclusive preferred age band.
type AgeRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// PreferenceProfile holds a user's stated partner preferences. Every
// dimension is optional; unset dimensions are excluded from scoring.
// City is a single value in the source data model, the rest are lists.
type PreferenceProfile struct {
	Gender        string    `json:"gender,omitempty"`
	AgeRange      *AgeRange `json:"ageRange,omitempty"`
	Religion      []string  `json:"religion,omitempty"`
	MaritalStatus []string  `json:"maritalStatus,omitempty"`
	MotherTongue  []string  `json:"motherTongue,omitempty"`
	Diet          []string  `json:"diet,omitempty"`
	State         []string  `json:"state,omitempty"`
	City          string    `json:"city,omitempty"`
	Complexion    []string  `json:"complexion,omitempty"`
}

// CandidateProfile holds the target user's actual attribute values.
// DateOfBirth is the stored string form; formats vary across profiles.
type CandidateProfile struct {
	ProfileID     string `json:"profileId"`
	Gender        string `json:"gender,omitempty"`
	DateOfBirth   string `json:"dateOfBirth,omitempty"`
	Religion      string `json:"religion,omitempty"`
	MaritalStatus string `json:"maritalStatus,omitempty"`
	MotherTongue  string `json:"motherTongue,omitempty"`
	Diet          string `json:"diet,omitempty"`
	State         string `json:"state,omitempty"`
	City          string `json:"city,omitempty"`
	Complexion    string `json:"complexion,omitempty"`
}

// Dimension is one evaluated comparison, exposed to the UI so the score
// can be explained.
type Dimension struct {
	Label          string `json:"label"`
	Matched        bool   `json:"matched"`
	YourPreference string `json:"yourPreference"`
	TheirValue     string `json:"theirValue"`
}

// Result is a compatibility score with its per-dimension breakdown.
type Result struct {
	Score     int         `json:"score"`
	Breakdown []Dimension `json:"breakdown"`
}

// Compute scores cand against prefs using the current time for age
// derivation. It returns nil when the pair gates out on gender or when no
// dimension was comparable; a fabricated 0% or 100% is never produced
// from an empty comparison.
func Compute(prefs PreferenceProfile, cand CandidateProfile) *Result {
	return ComputeAt(prefs, cand, time.Now())
}

// ComputeAt is Compute with an explicit reference time, for deterministic
// age handling in tests.
func ComputeAt(prefs PreferenceProfile, cand CandidateProfile, now time.Time) *Result {
	if !oppositeGender(prefs.Gender, cand.Gender) {
		return nil
	}

	var score, total int
	var breakdown []Dimension

	eval := func(label string, weight int, pref []string, theirs string) {
		if len(pref) == 0 || theirs == "" {
			return
		}
		matched := anyContains(pref, theirs)
		total += weight
		if matched {
			score += weight
		}
		breakdown = append(breakdown, Dimension{
			Label:          label,
			Matched:        matched,
			YourPreference: strings.Join(pref, ", "),
			TheirValue:     theirs,
		})
	}

	// Age is evaluated first and is the only non-binary dimension: a near
	// miss keeps partial credit and still reads as matched in the UI.
	if prefs.AgeRange != nil && cand.DateOfBirth != "" {
		age := DeriveAge(cand.DateOfBirth, now)
		inRange := age >= prefs.AgeRange.Min && age <= prefs.AgeRange.Max
		mid := float64(prefs.AgeRange.Min+prefs.AgeRange.Max) / 2
		nearRange := abs(float64(age)-mid) <= AgeNearMissYears
		total += WeightAge
		switch {
		case inRange:
			score += WeightAge
		case nearRange:
			score += AgeNearMissScore
		}
		breakdown = append(breakdown, Dimension{
			Label:          "Age",
			Matched:        inRange || nearRange,
			YourPreference: fmt.Sprintf("%d-%d yrs", prefs.AgeRange.Min, prefs.AgeRange.Max),
			TheirValue:     fmt.Sprintf("%d yrs", age),
		})
	}

	eval("Religion", WeightReligion, prefs.Religion, cand.Religion)
	eval("Marital Status", WeightMaritalStatus, prefs.MaritalStatus, cand.MaritalStatus)
	eval("Mother Tongue", WeightMotherTongue, prefs.MotherTongue, cand.MotherTongue)
	eval("Diet", WeightDiet, prefs.Diet, cand.Diet)
	eval("Location (State)", WeightState, prefs.State, cand.State)
	if prefs.City != "" {
		eval("City", WeightCity, []string{prefs.City}, cand.City)
	}
	eval("Complexion", WeightComplexion, prefs.Complexion, cand.Complexion)

	if total == 0 {
		return nil
	}

	return &Result{
		Score:     int(float64(score)/float64(total)*100 + 0.5),
		Breakdown: breakdown,
	}
}

// ComputeBatch scores each candidate independently against prefs. Gated or
// incomparable candidates map to nil; entries are never omitted, so the
// caller can distinguish "no data" from "not requested".
func ComputeBatch(prefs PreferenceProfile, cands []CandidateProfile) map[string]*int {
	return ComputeBatchAt(prefs, cands, time.Now())
}

// ComputeBatchAt is ComputeBatch with an explicit reference time.
func ComputeBatchAt(prefs PreferenceProfile, cands []CandidateProfile, now time.Time) map[string]*int {
	scores := make(map[string]*int, len(cands))
	for _, cand := range cands {
		if res := ComputeAt(prefs, cand, now); res != nil {
			s := res.Score
			scores[cand.ProfileID] = &s
		} else {
			scores[cand.ProfileID] = nil
		}
	}
	return scores
}

// DeriveAge extracts the birth year from a stored date-of-birth string and
// subtracts it from the reference year. Formats vary: the leading token of
// a "-" or "/" delimited date is taken as the year; undelimited strings
// fall back to their last four characters. Month and day are ignored, so
// the result is suitable for ranking but not for exact-age display.
func DeriveAge(dateOfBirth string, now time.Time) int {
	year := 0
	token := dateOfBirth
	if i := strings.IndexAny(dateOfBirth, "-/"); i >= 0 {
		token = dateOfBirth[:i]
	} else if len(dateOfBirth) > 4 {
		token = dateOfBirth[len(dateOfBirth)-4:]
	}
	if _, err := fmt.Sscanf(token, "%d", &year); err != nil {
		return 0
	}
	return now.Year() - year
}

// oppositeGender gates same-gender pairs out of scoring. Unknown gender on
// either side bypasses the gate.
func oppositeGender(mine, theirs string) bool {
	my := strings.ToLower(strings.TrimSpace(mine))
	their := strings.ToLower(strings.TrimSpace(theirs))
	if my == "" || their == "" {
		return true
	}
	return (my == "male" && their == "female") || (my == "female" && their == "male")
}

// anyContains reports whether any preference value contains the
// candidate's value, case-insensitively.
func anyContains(prefs []string, value string) bool {
	v := strings.ToLower(value)
	for _, p := range prefs {
		if strings.Contains(strings.ToLower(p), v) {
			return true
		}
	}
	return false
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
