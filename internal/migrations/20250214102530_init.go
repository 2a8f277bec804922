package migrations

import (
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigration(upInit, downInit)
}

func upInit(tx *sql.Tx) error {
	_, err := tx.Exec(`
	CREATE TABLE stories (
		id VARCHAR PRIMARY KEY,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE TABLE story_views (
		id SERIAL PRIMARY KEY,
		item_id VARCHAR NOT NULL REFERENCES stories (id) ON DELETE CASCADE,
		viewer_id VARCHAR NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		UNIQUE (item_id, viewer_id)
	);

	CREATE TABLE story_likes (
		id SERIAL PRIMARY KEY,
		item_id VARCHAR NOT NULL REFERENCES stories (id) ON DELETE CASCADE,
		user_id VARCHAR NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		UNIQUE (item_id, user_id)
	);

	CREATE TABLE story_mentions (
		id SERIAL PRIMARY KEY,
		item_id VARCHAR NOT NULL REFERENCES stories (id) ON DELETE CASCADE,
		user_id VARCHAR NOT NULL,
		position INTEGER NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		UNIQUE (item_id, user_id)
	);

	CREATE INDEX idx_stories_created_at ON stories (created_at);
	`)
	if err != nil {
		return err
	}
	return nil
}

func downInit(tx *sql.Tx) error {
	_, err := tx.Exec(`
	DROP TABLE story_mentions;
	DROP TABLE story_likes;
	DROP TABLE story_views;
	DROP TABLE stories;
	`)
	if err != nil {
		return err
	}
	return nil
}
