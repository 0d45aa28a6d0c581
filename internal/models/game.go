// internal/models/game.go
package models

import "time"

// GameStatus is the catalog lifecycle of an uploaded game.
type GameStatus string

const (
	GameActive   GameStatus = "active"
	GameInactive GameStatus = "inactive"
)

// Game is one catalog entry. FilePath is the folder name under the storage
// root holding the uploaded files and their manifest.
type Game struct {
	ID          int        `json:"id"`
	DevID       string     `json:"dev_id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Version     string     `json:"version"`
	Type        string     `json:"type"`
	MinPlayers  int        `json:"min_players"`
	MaxPlayers  int        `json:"max_players"`
	ServerExe   string     `json:"server_exe"`
	ClientExe   string     `json:"client_exe"`
	FilePath    string     `json:"file_path"`
	Status      GameStatus `json:"status"`
}

// Active reports whether rooms may be created for the game.
func (g *Game) Active() bool { return g.Status == GameActive }

// Review is one player rating of a game.
type Review struct {
	ID        int       `json:"id"`
	GameID    int       `json:"game_id"`
	Player    string    `json:"player"`
	Score     int       `json:"score"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// Rating aggregates a game's reviews.
type Rating struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}
