package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upConversations, downConversations)
}

func upConversations(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.Exec(`
	CREATE TABLE conversations (
		id VARCHAR PRIMARY KEY,
		user_a VARCHAR NOT NULL,
		user_b VARCHAR NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		UNIQUE (user_a, user_b)
	);

	CREATE TABLE conversation_messages (
		id VARCHAR PRIMARY KEY,
		conversation_id VARCHAR NOT NULL REFERENCES conversations (id) ON DELETE CASCADE,
		from_user VARCHAR NOT NULL,
		to_user VARCHAR NOT NULL,
		payload TEXT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE INDEX idx_conversation_messages_conversation_id ON conversation_messages (conversation_id);
	`)
	if err != nil {
		return err
	}
	return nil
}

func downConversations(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.Exec(`
	DROP TABLE conversation_messages;
	DROP TABLE conversations;
	`)
	if err != nil {
		return err
	}
	return nil
}
