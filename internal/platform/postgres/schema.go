package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS listings (
		id uuid PRIMARY KEY,
		status text NOT NULL DEFAULT 'draft',
		location text,
		image_count integer,
		property_stats jsonb,
		property_context text,
		has_scripts boolean NOT NULL DEFAULT false,
		has_video_reels boolean NOT NULL DEFAULT false,
		is_published boolean NOT NULL DEFAULT false,
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS media_groups (
		id uuid PRIMARY KEY,
		listing_id uuid NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
		group_name text NOT NULL,
		is_establishing_shot boolean NOT NULL DEFAULT false,
		script text,
		audio_url text,
		auto_reel_url text,
		reel_url text,
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now(),
		UNIQUE (listing_id, group_name)
	)`,
	`CREATE TABLE IF NOT EXISTS media (
		id uuid PRIMARY KEY,
		listing_id uuid NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
		group_id uuid REFERENCES media_groups(id) ON DELETE CASCADE,
		media_type text NOT NULL,
		media_url text NOT NULL,
		description text,
		is_establishing_shot boolean NOT NULL DEFAULT false,
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now(),
		UNIQUE (listing_id, media_url)
	)`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id text PRIMARY KEY,
		workflow_name text NOT NULL,
		status text NOT NULL DEFAULT 'running',
		current_step text,
		error text,
		entity_id text,
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS job_checkpoints (
		job_id text NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
		step_name text NOT NULL,
		result jsonb,
		created_at timestamptz NOT NULL DEFAULT now(),
		PRIMARY KEY (job_id, step_name)
	)`,
}

func applySchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
