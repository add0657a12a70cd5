package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateGame creates a new game
func (r *Repository) CreateGame(ctx context.Context, game *Game) error {
	if game.ID == "" {
		game.ID = uuid.New().String()
	}
	game.CreatedAt = time.Now()

	query := `
	INSERT INTO games (id, name, is_active, created_at)
	VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.Pool.Exec(ctx, query, game.ID, game.Name, game.IsActive, game.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create game: %w", err)
	}
	return nil
}

// GetGameByID retrieves a game by ID, returning nil when absent
func (r *Repository) GetGameByID(ctx context.Context, id string) (*Game, error) {
	query := `
	SELECT id, name, is_active, created_at, updated_at
	FROM games
	WHERE id = $1
	`

	var game Game
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&game.ID,
		&game.Name,
		&game.IsActive,
		&game.CreatedAt,
		&game.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get game by id: %w", err)
	}

	return &game, nil
}

// ListGames retrieves all games, optionally restricted to active ones
func (r *Repository) ListGames(ctx context.Context, activeOnly bool) ([]Game, error) {
	query := `
	SELECT id, name, is_active, created_at, updated_at
	FROM games
	`
	if activeOnly {
		query += " WHERE is_active = true"
	}
	query += " ORDER BY name"

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	defer rows.Close()

	var games []Game
	for rows.Next() {
		var game Game
		if err := rows.Scan(&game.ID, &game.Name, &game.IsActive, &game.CreatedAt, &game.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		games = append(games, game)
	}

	return games, rows.Err()
}

// UpdateGame updates a game's name and active flag
func (r *Repository) UpdateGame(ctx context.Context, game *Game) error {
	now := time.Now()
	game.UpdatedAt = &now

	query := `
	UPDATE games
	SET name = $2, is_active = $3, updated_at = $4
	WHERE id = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query, game.ID, game.Name, game.IsActive, game.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update game: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// DeactivateGame soft-deletes a game
func (r *Repository) DeactivateGame(ctx context.Context, id string) error {
	query := `UPDATE games SET is_active = false, updated_at = NOW() WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate game: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
