// internal/handlers/catalog.go
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"path/filepath"

	"github.com/jason-s-yu/arcade/internal/database"
	"github.com/jason-s-yu/arcade/internal/errs"
	"github.com/jason-s-yu/arcade/internal/models"
	"github.com/jason-s-yu/arcade/internal/packager"
	"github.com/jason-s-yu/arcade/internal/protocol"
	"github.com/sirupsen/logrus"
)

const (
	recentReviewLimit = 5
	reviewDateLayout  = "2006-01-02 15:04:05"
)

func (d *Dispatcher) listGames(ctx context.Context) (any, error) {
	games, err := d.store.ListActiveGames(ctx)
	if err != nil {
		return nil, errs.Internal(fmt.Errorf("list games: %w", err))
	}
	rows := make([]protocol.GameSummary, 0, len(games))
	for _, g := range games {
		rows = append(rows, protocol.GameSummary{
			ID:      g.ID,
			Name:    g.Name,
			Version: g.Version,
			Info:    g.Description,
			Min:     g.MinPlayers,
			Max:     g.MaxPlayers,
		})
	}
	return protocol.ListGamesReply{Reply: protocol.OK(), Games: rows}, nil
}

func (d *Dispatcher) loadGame(ctx context.Context, id int) (*models.Game, error) {
	game, err := d.store.GetGame(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, errs.NotFound("Game not found")
	}
	if err != nil {
		return nil, errs.Internal(fmt.Errorf("load game %d: %w", id, err))
	}
	return game, nil
}

func (d *Dispatcher) gameDetail(ctx context.Context, r protocol.GameDetailRequest) (any, error) {
	game, err := d.loadGame(ctx, r.GameID)
	if err != nil {
		return nil, err
	}
	rating, err := d.store.GetRating(ctx, game.ID)
	if err != nil {
		return nil, errs.Internal(fmt.Errorf("rating for %d: %w", game.ID, err))
	}
	reviews, err := d.store.RecentReviews(ctx, game.ID, recentReviewLimit)
	if err != nil {
		return nil, errs.Internal(fmt.Errorf("reviews for %d: %w", game.ID, err))
	}

	comments := make([]protocol.Comment, 0, len(reviews))
	for _, rev := range reviews {
		comments = append(comments, protocol.Comment{
			User:    rev.Player,
			Score:   rev.Score,
			Comment: rev.Comment,
			Date:    rev.CreatedAt.Format(reviewDateLayout),
		})
	}

	return protocol.GameDetailReply{
		Reply: protocol.OK(),
		Detail: protocol.GameDetail{
			ID:          game.ID,
			Name:        game.Name,
			Version:     game.Version,
			Description: game.Description,
			DevID:       game.DevID,
			Type:        game.Type,
			MinPlayers:  game.MinPlayers,
			MaxPlayers:  game.MaxPlayers,
			AvgScore:    math.Round(rating.Average*10) / 10,
			ReviewCount: rating.Count,
			Comments:    comments,
		},
	}, nil
}

// rateGame records a review by the logged-in player, who must have played
// the game at least once.
func (d *Dispatcher) rateGame(ctx context.Context, c *client, r protocol.RateGameRequest) (any, error) {
	if r.Score < 1 || r.Score > 5 {
		return nil, errs.Invalid("Score must be between 1 and 5")
	}
	if _, err := d.loadGame(ctx, r.GameID); err != nil {
		return nil, err
	}
	err := d.store.AddReview(ctx, &models.Review{
		GameID:  r.GameID,
		Player:  c.user,
		Score:   r.Score,
		Comment: r.Comment,
	})
	if errors.Is(err, database.ErrNotPlayed) {
		return nil, errs.New(errs.KindPermission, "You have not played this game yet")
	}
	if err != nil {
		return nil, errs.Internal(fmt.Errorf("add review: %w", err))
	}
	c.log.WithField("game_id", r.GameID).Infof("rated %d", r.Score)
	return protocol.OK(), nil
}

// downloadGame sends the ok reply and the packed game folder as one write so
// nothing else reaches the client between them.
func (d *Dispatcher) downloadGame(ctx context.Context, c *client, r protocol.DownloadGameRequest) error {
	game, err := d.loadGame(ctx, r.GameID)
	if err != nil {
		return err
	}

	archive, err := packager.Zip(filepath.Join(d.storageDir, game.FilePath), d.tempDir)
	if errors.Is(err, fs.ErrNotExist) {
		return errs.NotFound("Game files not found on server")
	}
	if err != nil {
		return errs.Internal(fmt.Errorf("pack game %d: %w", game.ID, err))
	}
	defer archive.Close()

	body, err := archive.Reader()
	if err != nil {
		return errs.Internal(fmt.Errorf("rewind archive: %w", err))
	}

	log := c.log.WithFields(logrus.Fields{"game_id": game.ID, "bytes": archive.Size()})
	reply := protocol.DownloadReply{Reply: protocol.OK(), GameID: game.ID}
	if err := c.conn.SendWithFile(reply, body, archive.Size()); err != nil {
		log.WithError(err).Warn("download aborted")
		return nil
	}
	log.Info("game downloaded")
	return nil
}
