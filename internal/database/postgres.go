// internal/database/postgres.go
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/arcade/internal/auth"
	"github.com/jason-s-yu/arcade/internal/models"
	"github.com/sirupsen/logrus"
)

const uniqueViolation = "23505"

// Postgres is the Store backed by a pgx connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	params *auth.HashParams
	logger *logrus.Logger
}

// Connect opens a pool against databaseURL and pings it.
func Connect(ctx context.Context, databaseURL string, logger *logrus.Logger) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"host":     config.ConnConfig.Host,
		"database": config.ConnConfig.Database,
	}).Info("connected to database")
	return NewPostgres(pool, logger), nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool, logger *logrus.Logger) *Postgres {
	return &Postgres{pool: pool, params: auth.DefaultParams, logger: logger}
}

// WithHashParams overrides the argon2 parameters for newly registered users.
func (p *Postgres) WithHashParams(params *auth.HashParams) *Postgres {
	p.params = params
	return p
}

// Pool exposes the underlying pool.
func (p *Postgres) Pool() *pgxpool.Pool { return p.pool }

func (p *Postgres) Close() { p.pool.Close() }

const gameColumns = `game_id, dev_id, name, description, version, game_type,
	min_players, max_players, server_exe, client_exe, file_path, status`

func scanGame(row pgx.Row) (*models.Game, error) {
	var g models.Game
	err := row.Scan(
		&g.ID, &g.DevID, &g.Name, &g.Description, &g.Version, &g.Type,
		&g.MinPlayers, &g.MaxPlayers, &g.ServerExe, &g.ClientExe, &g.FilePath, &g.Status,
	)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (p *Postgres) GetGame(ctx context.Context, id int) (*models.Game, error) {
	g, err := scanGame(p.pool.QueryRow(ctx, `SELECT `+gameColumns+` FROM games WHERE game_id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get game %d: %w", id, err)
	}
	return g, nil
}

func (p *Postgres) ListActiveGames(ctx context.Context) ([]models.Game, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+gameColumns+` FROM games WHERE status = $1 ORDER BY game_id`, models.GameActive)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	var games []models.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		games = append(games, *g)
	}
	return games, rows.Err()
}

func (p *Postgres) CreateGame(ctx context.Context, g *models.Game) error {
	if g.Status == "" {
		g.Status = models.GameActive
	}
	q := `
		INSERT INTO games (dev_id, name, description, version, game_type,
		                   min_players, max_players, server_exe, client_exe, file_path, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING game_id
	`
	err := p.pool.QueryRow(ctx, q,
		g.DevID, g.Name, g.Description, g.Version, g.Type,
		g.MinPlayers, g.MaxPlayers, g.ServerExe, g.ClientExe, g.FilePath, g.Status,
	).Scan(&g.ID)
	if err != nil {
		return fmt.Errorf("failed to insert game: %w", err)
	}
	return nil
}

func accountTable(role models.Role) (string, error) {
	switch role {
	case models.RolePlayer:
		return "players", nil
	case models.RoleDeveloper:
		return "developers", nil
	}
	return "", fmt.Errorf("unknown role %q", role)
}

// RegisterUser hashes u.Password in place and inserts the account.
func (p *Postgres) RegisterUser(ctx context.Context, u *models.User) error {
	table, err := accountTable(u.Role)
	if err != nil {
		return err
	}
	hash, err := auth.CreateHash(u.Password, p.params)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	u.Password = hash

	_, err = p.pool.Exec(ctx, `INSERT INTO `+table+` (username, password) VALUES ($1, $2)`, u.Username, u.Password)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (p *Postgres) VerifyUser(ctx context.Context, role models.Role, username, password string) (bool, error) {
	table, err := accountTable(role)
	if err != nil {
		return false, err
	}
	var hash string
	err = p.pool.QueryRow(ctx, `SELECT password FROM `+table+` WHERE username = $1`, username).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup user: %w", err)
	}
	ok, err := auth.ComparePasswordAndHash(password, hash)
	if err != nil {
		p.logger.WithError(err).WithField("user", username).Warn("stored hash is unreadable")
		return false, nil
	}
	return ok, nil
}

// RecordPlays inserts one play_history row per player in a single transaction.
func (p *Postgres) RecordPlays(ctx context.Context, gameID int, players []string) error {
	if len(players) == 0 {
		return nil
	}
	err := pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, name := range players {
			batch.Queue(`INSERT INTO play_history (game_id, player_id) VALUES ($1, $2)`, gameID, name)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("failed to record play history: %w", err)
	}
	return nil
}

func (p *Postgres) GetRating(ctx context.Context, gameID int) (models.Rating, error) {
	var (
		avg *float64
		r   models.Rating
	)
	err := p.pool.QueryRow(ctx, `SELECT AVG(score)::float8, COUNT(*) FROM reviews WHERE game_id = $1`, gameID).Scan(&avg, &r.Count)
	if err != nil {
		return r, fmt.Errorf("rating for game %d: %w", gameID, err)
	}
	if avg != nil {
		r.Average = *avg
	}
	return r, nil
}

func (p *Postgres) RecentReviews(ctx context.Context, gameID, limit int) ([]models.Review, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT review_id, game_id, player_id, score, comment, created_at
		FROM reviews
		WHERE game_id = $1
		ORDER BY created_at DESC, review_id DESC
		LIMIT $2
	`, gameID, limit)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var out []models.Review
	for rows.Next() {
		var r models.Review
		if err := rows.Scan(&r.ID, &r.GameID, &r.Player, &r.Score, &r.Comment, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AddReview stores r if the player has played the game.
func (p *Postgres) AddReview(ctx context.Context, r *models.Review) error {
	err := pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var played bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM play_history WHERE game_id = $1 AND player_id = $2)`,
			r.GameID, r.Player,
		).Scan(&played)
		if err != nil {
			return err
		}
		if !played {
			return ErrNotPlayed
		}
		return tx.QueryRow(ctx, `
			INSERT INTO reviews (game_id, player_id, score, comment)
			VALUES ($1, $2, $3, $4)
			RETURNING review_id, created_at
		`, r.GameID, r.Player, r.Score, r.Comment).Scan(&r.ID, &r.CreatedAt)
	})
	if errors.Is(err, ErrNotPlayed) {
		return ErrNotPlayed
	}
	if err != nil {
		return fmt.Errorf("failed to insert review: %w", err)
	}
	return nil
}

// InsertRoomEvents persists a batch of journal entries in one transaction.
// Replayed ids are ignored.
func (p *Postgres) InsertRoomEvents(ctx context.Context, events []models.RoomEvent) error {
	if len(events) == 0 {
		return nil
	}
	err := pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, ev := range events {
			var port *int
			if ev.Port != 0 {
				port = &ev.Port
			}
			users := ev.Users
			if users == nil {
				users = []string{}
			}
			batch.Queue(`
				INSERT INTO room_events (event_id, event_type, room_id, game_id, users, port, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (event_id) DO NOTHING
			`, ev.ID, ev.Type, ev.RoomID, ev.GameID, users, port, ev.Timestamp)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("failed to insert room events: %w", err)
	}
	return nil
}
