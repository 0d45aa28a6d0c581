// internal/database/memory.go
package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jason-s-yu/arcade/internal/auth"
	"github.com/jason-s-yu/arcade/internal/models"
)

// Memory is a process-local Store for tests and single-node runs without
// postgres. Passwords are still hashed.
type Memory struct {
	mu       sync.RWMutex
	params   *auth.HashParams
	nextGame int
	nextRev  int
	games    map[int]models.Game
	accounts map[models.Role]map[string]string
	plays    map[int]map[string]int
	reviews  map[int][]models.Review
	events   []models.RoomEvent

	now func() time.Time
}

// NewMemory returns an empty Memory store using params for password hashes.
func NewMemory(params *auth.HashParams) *Memory {
	if params == nil {
		params = auth.DefaultParams
	}
	return &Memory{
		params: params,
		games:  make(map[int]models.Game),
		accounts: map[models.Role]map[string]string{
			models.RolePlayer:    {},
			models.RoleDeveloper: {},
		},
		plays:   make(map[int]map[string]int),
		reviews: make(map[int][]models.Review),
		now:     time.Now,
	}
}

func (m *Memory) Close() {}

func (m *Memory) GetGame(_ context.Context, id int) (*models.Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &g, nil
}

func (m *Memory) ListActiveGames(_ context.Context) ([]models.Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Game
	for _, g := range m.games {
		if g.Active() {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateGame assigns the next id unless g.ID is already set.
func (m *Memory) CreateGame(_ context.Context, g *models.Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g.Status == "" {
		g.Status = models.GameActive
	}
	if g.ID == 0 {
		m.nextGame++
		g.ID = m.nextGame
	} else if _, exists := m.games[g.ID]; exists {
		return ErrAlreadyExists
	} else if g.ID > m.nextGame {
		m.nextGame = g.ID
	}
	m.games[g.ID] = *g
	return nil
}

// PutGame replaces the stored row for g.ID, the way a publish or delist from
// the developer side would.
func (m *Memory) PutGame(g models.Game) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.games[g.ID] = g
}

func (m *Memory) RegisterUser(_ context.Context, u *models.User) error {
	table, ok := m.accounts[u.Role]
	if !ok {
		return fmt.Errorf("unknown role %q", u.Role)
	}
	hash, err := auth.CreateHash(u.Password, m.params)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := table[u.Username]; exists {
		return ErrAlreadyExists
	}
	u.Password = hash
	table[u.Username] = hash
	return nil
}

func (m *Memory) VerifyUser(_ context.Context, role models.Role, username, password string) (bool, error) {
	m.mu.RLock()
	hash, ok := m.accounts[role][username]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	match, err := auth.ComparePasswordAndHash(password, hash)
	if err != nil {
		return false, nil
	}
	return match, nil
}

func (m *Memory) RecordPlays(_ context.Context, gameID int, players []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.plays[gameID] == nil {
		m.plays[gameID] = make(map[string]int)
	}
	for _, p := range players {
		m.plays[gameID][p]++
	}
	return nil
}

// Plays returns how many sessions of gameID were recorded for player.
func (m *Memory) Plays(gameID int, player string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.plays[gameID][player]
}

func (m *Memory) GetRating(_ context.Context, gameID int) (models.Rating, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	revs := m.reviews[gameID]
	r := models.Rating{Count: len(revs)}
	if r.Count == 0 {
		return r, nil
	}
	total := 0
	for _, rev := range revs {
		total += rev.Score
	}
	r.Average = float64(total) / float64(r.Count)
	return r, nil
}

func (m *Memory) RecentReviews(_ context.Context, gameID, limit int) ([]models.Review, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	revs := m.reviews[gameID]
	out := make([]models.Review, 0, min(limit, len(revs)))
	for i := len(revs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, revs[i])
	}
	return out, nil
}

func (m *Memory) AddReview(_ context.Context, r *models.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.plays[r.GameID][r.Player] == 0 {
		return ErrNotPlayed
	}
	m.nextRev++
	r.ID = m.nextRev
	r.CreatedAt = m.now()
	m.reviews[r.GameID] = append(m.reviews[r.GameID], *r)
	return nil
}

// InsertRoomEvents appends events, skipping ids already stored.
func (m *Memory) InsertRoomEvents(_ context.Context, events []models.RoomEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]struct{}, len(m.events))
	for _, ev := range m.events {
		seen[ev.ID.String()] = struct{}{}
	}
	for _, ev := range events {
		if _, dup := seen[ev.ID.String()]; dup {
			continue
		}
		seen[ev.ID.String()] = struct{}{}
		m.events = append(m.events, ev)
	}
	return nil
}

// RoomEvents returns a copy of the stored journal.
func (m *Memory) RoomEvents() []models.RoomEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.RoomEvent(nil), m.events...)
}
