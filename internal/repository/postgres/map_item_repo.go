package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Harsh-BH/geocache/internal/domain"
	"github.com/Harsh-BH/geocache/internal/repository"
)

// Ensure pgMapItemRepo implements repository.MapItemRepository.
var _ repository.MapItemRepository = (*pgMapItemRepo)(nil)

type pgMapItemRepo struct {
	pool *pgxpool.Pool
}

// NewPostgresMapItemRepository creates a new PostgreSQL-backed map item repository.
func NewPostgresMapItemRepository(pool *pgxpool.Pool) repository.MapItemRepository {
	return &pgMapItemRepo{pool: pool}
}

func (r *pgMapItemRepo) ListInBounds(ctx context.Context, category domain.Category, b domain.Bounds, limit int) ([]domain.MapItem, error) {
	query := `
		SELECT id, category, title, description, lat, lng, pincode, created_at
		FROM map_items
		WHERE category = $1
		  AND lat BETWEEN $2 AND $3
		  AND lng BETWEEN $4 AND $5
		ORDER BY created_at DESC
		LIMIT $6`

	rows, err := r.pool.Query(ctx, query, category, b.MinLat, b.MaxLat, b.MinLng, b.MaxLng, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list map items: %w", err)
	}

	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.MapItem, error) {
		var it domain.MapItem
		err := row.Scan(&it.ID, &it.Category, &it.Title, &it.Description, &it.Lat, &it.Lng, &it.Pincode, &it.CreatedAt)
		return it, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan map items: %w", err)
	}
	return items, nil
}

func (r *pgMapItemRepo) Create(ctx context.Context, item *domain.MapItem) error {
	query := `
		INSERT INTO map_items (id, category, title, description, lat, lng, pincode, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate UUIDv7: %w", err)
	}
	now := time.Now().UTC()
	_, err = r.pool.Exec(ctx, query,
		id.String(), item.Category, item.Title, item.Description,
		item.Lat, item.Lng, item.Pincode, now,
	)
	if err != nil {
		return fmt.Errorf("postgres: create map item: %w", err)
	}
	item.ID = id.String()
	item.CreatedAt = now
	return nil
}

func (r *pgMapItemRepo) Delete(ctx context.Context, category domain.Category, id string) (*domain.MapItem, error) {
	query := `
		DELETE FROM map_items
		WHERE id = $1 AND category = $2
		RETURNING id, category, title, description, lat, lng, pincode, created_at`

	it := &domain.MapItem{}
	err := r.pool.QueryRow(ctx, query, id, category).Scan(
		&it.ID, &it.Category, &it.Title, &it.Description,
		&it.Lat, &it.Lng, &it.Pincode, &it.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: delete map item: %w", err)
	}
	return it, nil
}

func (r *pgMapItemRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
