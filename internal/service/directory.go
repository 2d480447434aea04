package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"wallet-settlement/internal/core/domain"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// ParticipantLoader reads the full participant list from its source.
type ParticipantLoader interface {
	Load(ctx context.Context) ([]domain.Participant, error)
}

// FileParticipantLoader reads participants from a YAML file.
type FileParticipantLoader struct {
	Path string
}

type participantFile struct {
	Participants []domain.Participant `yaml:"participants"`
}

// Load parses the file on every call so edits are picked up by Refresh.
func (l FileParticipantLoader) Load(_ context.Context) ([]domain.Participant, error) {
	raw, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, fmt.Errorf("reading participant file: %w", err)
	}
	var f participantFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parsing participant file: %w", err)
	}
	return f.Participants, nil
}

// StaticParticipantLoader serves a fixed list.
type StaticParticipantLoader []domain.Participant

// Load returns the fixed list.
func (l StaticParticipantLoader) Load(_ context.Context) ([]domain.Participant, error) {
	return []domain.Participant(l), nil
}

type directorySnapshot struct {
	list     []domain.Participant
	byID     map[string]domain.Participant
	loadedAt time.Time
}

// Directory implements ports.ParticipantDirectory over an atomically swapped
// snapshot. A failed refresh keeps serving the previous snapshot.
type Directory struct {
	loader   ParticipantLoader
	snapshot atomic.Pointer[directorySnapshot]
	log      zerolog.Logger
}

// NewDirectory creates a directory. Call Refresh before serving lookups.
func NewDirectory(loader ParticipantLoader, log zerolog.Logger) *Directory {
	return &Directory{loader: loader, log: log}
}

// Refresh reloads the participant list.
func (d *Directory) Refresh(ctx context.Context) error {
	participants, err := d.loader.Load(ctx)
	if err != nil {
		return err
	}

	snap := &directorySnapshot{
		byID:     make(map[string]domain.Participant, len(participants)),
		loadedAt: time.Now().UTC(),
	}
	for _, p := range participants {
		p.ID = strings.TrimSpace(p.ID)
		if err := validateParticipant(p); err != nil {
			return err
		}
		if _, dup := snap.byID[p.ID]; dup {
			return fmt.Errorf("duplicate participant %q", p.ID)
		}
		p.Endpoint = strings.TrimRight(p.Endpoint, "/")
		snap.byID[p.ID] = p
		snap.list = append(snap.list, p)
	}
	sort.Slice(snap.list, func(i, j int) bool { return snap.list[i].ID < snap.list[j].ID })

	d.snapshot.Store(snap)
	d.log.Info().Int("participants", len(snap.list)).Msg("participant directory refreshed")
	return nil
}

// Run refreshes the directory every interval until ctx is done.
func (d *Directory) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.Refresh(ctx); err != nil {
				d.log.Warn().Err(err).Msg("participant directory refresh failed, keeping previous snapshot")
			}
		}
	}
}

// List returns every participant ordered by id.
func (d *Directory) List(_ context.Context) ([]domain.Participant, error) {
	snap := d.snapshot.Load()
	if snap == nil {
		return []domain.Participant{}, nil
	}
	out := make([]domain.Participant, len(snap.list))
	copy(out, snap.list)
	return out, nil
}

// Lookup returns the participant or nil if it is not listed.
func (d *Directory) Lookup(_ context.Context, participantID string) (*domain.Participant, error) {
	snap := d.snapshot.Load()
	if snap == nil {
		return nil, nil
	}
	p, ok := snap.byID[participantID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// Ping implements ports.HealthChecker: healthy once a snapshot is loaded.
func (d *Directory) Ping(_ context.Context) error {
	if d.snapshot.Load() == nil {
		return errors.New("participant directory not loaded")
	}
	return nil
}

// Name returns the dependency name.
func (d *Directory) Name() string {
	return "directory"
}

func validateParticipant(p domain.Participant) error {
	if p.ID == "" {
		return errors.New("participant id is required")
	}
	if p.Endpoint == "" {
		return nil
	}
	u, err := url.Parse(p.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("participant %q: invalid endpoint %q", p.ID, p.Endpoint)
	}
	return nil
}
