// internal/database/store.go
package database

import (
	"context"
	"errors"

	"github.com/jason-s-yu/arcade/internal/models"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned on a unique key conflict.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotPlayed is returned when a review is submitted for a game the
	// player has no recorded play session of.
	ErrNotPlayed = errors.New("no play session recorded")
)

// Store is the catalog and account store the lobby reads and writes.
type Store interface {
	GetGame(ctx context.Context, id int) (*models.Game, error)
	ListActiveGames(ctx context.Context) ([]models.Game, error)
	CreateGame(ctx context.Context, g *models.Game) error

	RegisterUser(ctx context.Context, u *models.User) error
	VerifyUser(ctx context.Context, role models.Role, username, password string) (bool, error)

	RecordPlays(ctx context.Context, gameID int, players []string) error
	GetRating(ctx context.Context, gameID int) (models.Rating, error)
	RecentReviews(ctx context.Context, gameID, limit int) ([]models.Review, error)
	AddReview(ctx context.Context, r *models.Review) error

	Close()
}
