package profile

import "time"

// Retention caps for the bounded profile fields. Oldest entries are dropped
// first when a cap is exceeded.
const (
	MaxMoodEntries = 10
	MaxTopics      = 8
	MaxTechniques  = 6
)

// DefaultSummary is the summary a freshly created profile starts with.
const DefaultSummary = "New user - just started their mental health journey"

// MoodEntry records one observed emotional state and why.
type MoodEntry struct {
	Mood          string `json:"mood"`
	ReasonSummary string `json:"reason_summary"`
}

// Profile is the long-lived per-user support profile. It holds general
// emotional patterns and preferences, never personally identifiable details.
type Profile struct {
	UserID              string      `json:"user_id"`
	LastUpdated         time.Time   `json:"last_updated"`
	Summary             string      `json:"summary"`
	MoodHistory         []MoodEntry `json:"mood_history"`
	RecurringTopics     []string    `json:"recurring_topics"`
	EffectiveTechniques []string    `json:"effective_techniques"`
	SessionCount        int         `json:"session_count"`
}

// NewProfile returns the default profile for a user seen for the first time.
func NewProfile(userID string) *Profile {
	return &Profile{
		UserID:              userID,
		LastUpdated:         time.Now().UTC(),
		Summary:             DefaultSummary,
		MoodHistory:         []MoodEntry{},
		RecurringTopics:     []string{},
		EffectiveTechniques: []string{},
		SessionCount:        0,
	}
}

// Clamp trims the bounded fields to their caps, keeping the most recent
// entries (the suffix).
func (p *Profile) Clamp() {
	if len(p.MoodHistory) > MaxMoodEntries {
		p.MoodHistory = p.MoodHistory[len(p.MoodHistory)-MaxMoodEntries:]
	}
	if len(p.RecurringTopics) > MaxTopics {
		p.RecurringTopics = p.RecurringTopics[len(p.RecurringTopics)-MaxTopics:]
	}
	if len(p.EffectiveTechniques) > MaxTechniques {
		p.EffectiveTechniques = p.EffectiveTechniques[len(p.EffectiveTechniques)-MaxTechniques:]
	}
}

// RecentMoods returns up to n of the most recent mood entries, oldest first.
func (p *Profile) RecentMoods(n int) []MoodEntry {
	if len(p.MoodHistory) <= n {
		return p.MoodHistory
	}
	return p.MoodHistory[len(p.MoodHistory)-n:]
}

// Clone returns a deep copy so callers can mutate a working copy without
// touching the loaded profile.
func (p *Profile) Clone() *Profile {
	c := *p
	c.MoodHistory = append([]MoodEntry(nil), p.MoodHistory...)
	c.RecurringTopics = append([]string(nil), p.RecurringTopics...)
	c.EffectiveTechniques = append([]string(nil), p.EffectiveTechniques...)
	return &c
}
