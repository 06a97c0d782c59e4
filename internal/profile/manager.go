package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/havenchat/haven/internal/storage"
)

// Store is the persistence the manager needs from the storage layer.
type Store interface {
	GetProfile(userID string) (storage.ProfileRecord, error)
	UpsertProfile(p storage.ProfileRecord) error
}

// Manager loads and saves user profiles, creating a default profile on
// first contact with a user.
type Manager struct {
	store  Store
	logger *slog.Logger
}

func NewManager(store Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, logger: logger}
}

// Load returns the profile for userID, creating and persisting the default
// profile on first contact. Load is best effort: a store read failure, an
// undecodable row, or a failed create is logged and the in-memory default is
// returned so the turn can proceed without persisted context.
func (m *Manager) Load(userID string) *Profile {
	rec, err := m.store.GetProfile(userID)
	if errors.Is(err, storage.ErrNotFound) {
		p := NewProfile(userID)
		if err := m.Save(p); err != nil {
			m.logger.Warn("persisting default profile failed", "user_id", userID, "error", err)
		}
		return p
	}
	if err != nil {
		m.logger.Warn("loading profile failed, using default", "user_id", userID, "error", err)
		return NewProfile(userID)
	}
	p, err := fromRecord(rec)
	if err != nil {
		m.logger.Warn("decoding profile failed, using default", "user_id", userID, "error", err)
		return NewProfile(userID)
	}
	return p
}

// Get returns the profile for userID without creating one; unknown users
// yield storage.ErrNotFound.
func (m *Manager) Get(userID string) (*Profile, error) {
	rec, err := m.store.GetProfile(userID)
	if err != nil {
		return nil, err
	}
	return fromRecord(rec)
}

// Save persists the profile, stamping LastUpdated.
func (m *Manager) Save(p *Profile) error {
	p.LastUpdated = time.Now().UTC()
	rec, err := toRecord(p)
	if err != nil {
		return fmt.Errorf("encoding profile for %s: %w", p.UserID, err)
	}
	if err := m.store.UpsertProfile(rec); err != nil {
		return fmt.Errorf("saving profile for %s: %w", p.UserID, err)
	}
	return nil
}

func fromRecord(rec storage.ProfileRecord) (*Profile, error) {
	p := &Profile{
		UserID:       rec.UserID,
		LastUpdated:  rec.UpdatedAt,
		Summary:      rec.Summary,
		SessionCount: rec.SessionCount,
	}
	if err := json.Unmarshal([]byte(rec.MoodHistoryJSON), &p.MoodHistory); err != nil {
		return nil, fmt.Errorf("decoding mood history: %w", err)
	}
	if err := json.Unmarshal([]byte(rec.RecurringTopicsJSON), &p.RecurringTopics); err != nil {
		return nil, fmt.Errorf("decoding recurring topics: %w", err)
	}
	if err := json.Unmarshal([]byte(rec.TechniquesJSON), &p.EffectiveTechniques); err != nil {
		return nil, fmt.Errorf("decoding techniques: %w", err)
	}
	return p, nil
}

func toRecord(p *Profile) (storage.ProfileRecord, error) {
	moods, err := json.Marshal(p.MoodHistory)
	if err != nil {
		return storage.ProfileRecord{}, err
	}
	topics, err := json.Marshal(p.RecurringTopics)
	if err != nil {
		return storage.ProfileRecord{}, err
	}
	techniques, err := json.Marshal(p.EffectiveTechniques)
	if err != nil {
		return storage.ProfileRecord{}, err
	}
	return storage.ProfileRecord{
		UserID:              p.UserID,
		Summary:             p.Summary,
		MoodHistoryJSON:     string(moods),
		RecurringTopicsJSON: string(topics),
		TechniquesJSON:      string(techniques),
		SessionCount:        p.SessionCount,
		UpdatedAt:           p.LastUpdated,
	}, nil
}
