package listing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"listingreel/internal/logger"
)

// Repository implements Store on PostgreSQL. Groups upsert on
// (listing_id, group_name) and media on (listing_id, media_url) so workflow
// steps that re-run overwrite their previous writes.
type Repository struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, log: logger.New("ListingRepo")}
}

func (r *Repository) CreateListing(ctx context.Context) (*Listing, error) {
	id := uuid.NewString()
	if _, err := r.pool.Exec(ctx, `INSERT INTO listings (id) VALUES ($1);`, id); err != nil {
		return nil, fmt.Errorf("create listing: %w", err)
	}
	return r.GetListing(ctx, id)
}

const listingColumns = `id, status, location, image_count, property_stats, property_context,
	has_scripts, has_video_reels, is_published, created_at, updated_at`

func (r *Repository) GetListing(ctx context.Context, id string) (*Listing, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1;`, id)
	var l Listing
	var stats []byte
	if err := row.Scan(
		&l.ID,
		&l.Status,
		&l.Location,
		&l.ImageCount,
		&stats,
		&l.PropertyContext,
		&l.HasScripts,
		&l.HasVideoReels,
		&l.IsPublished,
		&l.CreatedAt,
		&l.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(stats) > 0 {
		l.PropertyStats = &PropertyStats{}
		if err := json.Unmarshal(stats, l.PropertyStats); err != nil {
			return nil, fmt.Errorf("decode property stats for %s: %w", id, err)
		}
	}
	return &l, nil
}

func (r *Repository) UpdateListing(ctx context.Context, id string, upd ListingUpdate) error {
	var stats []byte
	if upd.PropertyStats != nil {
		b, err := json.Marshal(upd.PropertyStats)
		if err != nil {
			return fmt.Errorf("encode property stats: %w", err)
		}
		stats = b
	}
	query := `
UPDATE listings SET
	status = COALESCE($2, status),
	location = COALESCE($3, location),
	image_count = COALESCE($4, image_count),
	property_stats = COALESCE($5, property_stats),
	property_context = COALESCE($6, property_context),
	has_scripts = COALESCE($7, has_scripts),
	has_video_reels = COALESCE($8, has_video_reels),
	is_published = COALESCE($9, is_published),
	updated_at = now()
WHERE id = $1;
`
	tag, err := r.pool.Exec(ctx, query, id,
		upd.Status, upd.Location, upd.ImageCount, stats, upd.PropertyContext,
		upd.HasScripts, upd.HasVideoReels, upd.IsPublished,
	)
	if err != nil {
		return fmt.Errorf("update listing %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const groupColumns = `id, listing_id, group_name, is_establishing_shot, script,
	audio_url, auto_reel_url, reel_url, created_at, updated_at`

func (r *Repository) UpsertGroup(ctx context.Context, listingID, groupName string, isEstablishingShot bool) (*MediaGroup, error) {
	query := `
INSERT INTO media_groups (id, listing_id, group_name, is_establishing_shot)
VALUES ($1, $2, $3, $4)
ON CONFLICT (listing_id, group_name)
DO UPDATE SET is_establishing_shot = EXCLUDED.is_establishing_shot, updated_at = now()
RETURNING ` + groupColumns + `;`
	row := r.pool.QueryRow(ctx, query, uuid.NewString(), listingID, groupName, isEstablishingShot)
	g, err := scanGroup(row)
	if err != nil {
		return nil, fmt.Errorf("upsert group %q for listing %s: %w", groupName, listingID, err)
	}
	return g, nil
}

func (r *Repository) GetGroup(ctx context.Context, id string) (*MediaGroup, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+groupColumns+` FROM media_groups WHERE id = $1;`, id)
	g, err := scanGroup(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	media, err := r.mediaByGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	g.Media = media
	return g, nil
}

func (r *Repository) UpdateGroup(ctx context.Context, id string, upd GroupUpdate) error {
	query := `
UPDATE media_groups SET
	script = COALESCE($2, script),
	audio_url = COALESCE($3, audio_url),
	auto_reel_url = COALESCE($4, auto_reel_url),
	reel_url = COALESCE($5, reel_url),
	updated_at = now()
WHERE id = $1;
`
	tag, err := r.pool.Exec(ctx, query, id, upd.Script, upd.AudioURL, upd.AutoReelURL, upd.ReelURL)
	if err != nil {
		return fmt.Errorf("update group %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) GroupsByListing(ctx context.Context, listingID string) ([]MediaGroup, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+groupColumns+` FROM media_groups WHERE listing_id = $1 ORDER BY created_at;`, listingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []MediaGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range groups {
		media, err := r.mediaByGroup(ctx, groups[i].ID)
		if err != nil {
			return nil, err
		}
		groups[i].Media = media
	}
	return groups, nil
}

func (r *Repository) AddMedia(ctx context.Context, items []Media) error {
	query := `
INSERT INTO media (id, listing_id, group_id, media_type, media_url, description, is_establishing_shot)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (listing_id, media_url)
DO UPDATE SET group_id = EXCLUDED.group_id,
	description = EXCLUDED.description,
	is_establishing_shot = EXCLUDED.is_establishing_shot,
	updated_at = now();
`
	for _, m := range items {
		id := m.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := r.pool.Exec(ctx, query, id,
			m.ListingID, m.GroupID, m.MediaType, m.MediaURL, m.Description, m.IsEstablishingShot,
		); err != nil {
			return fmt.Errorf("add media %s: %w", m.MediaURL, err)
		}
	}
	return nil
}

func (r *Repository) mediaByGroup(ctx context.Context, groupID string) ([]Media, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, listing_id, group_id, media_type, media_url, description, is_establishing_shot
FROM media WHERE group_id = $1 ORDER BY created_at;`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Media
	for rows.Next() {
		var m Media
		if err := rows.Scan(&m.ID, &m.ListingID, &m.GroupID, &m.MediaType, &m.MediaURL, &m.Description, &m.IsEstablishingShot); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func scanGroup(row pgx.Row) (*MediaGroup, error) {
	var g MediaGroup
	if err := row.Scan(
		&g.ID,
		&g.ListingID,
		&g.GroupName,
		&g.IsEstablishingShot,
		&g.Script,
		&g.AudioURL,
		&g.AutoReelURL,
		&g.ReelURL,
		&g.CreatedAt,
		&g.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &g, nil
}
