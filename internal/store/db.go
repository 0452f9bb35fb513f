// Package store is the relational persistence layer (§6 "Persisted
// tables"): im_single_message, im_group_message, im_chat and
// subscriptions, reached through github.com/jmoiron/sqlx over
// github.com/go-sql-driver/mysql, exactly the stack the teacher's own
// store/adapter package targets.
package store

import (
	"github.com/jmoiron/sqlx"

	_ "github.com/go-sql-driver/mysql"
)

// Open connects to the relational store and verifies connectivity.
func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("mysql", dsn)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// Schema holds the DDL for the four tables this core owns. A
// deployment is expected to run this once via its own migration
// tooling; SPEC_FULL's Non-goals exclude "the relational schema
// beyond message and session tables" from the core's runtime
// responsibilities, so this is kept as a reference constant rather
// than wired into a migration runner.
const Schema = `
CREATE TABLE IF NOT EXISTS im_single_message (
	message_id   VARCHAR(64) PRIMARY KEY,
	from_id      BIGINT UNSIGNED NOT NULL,
	to_id        BIGINT UNSIGNED NOT NULL,
	body         TEXT NOT NULL,
	time         BIGINT NOT NULL,
	content_type INT NOT NULL,
	read_status  INT NOT NULL DEFAULT 0,
	sequence     BIGINT NOT NULL,
	del_flag     INT NOT NULL DEFAULT 1,
	reply_to     VARCHAR(64),
	file_url     VARCHAR(512),
	file_name    VARCHAR(256),
	file_type    VARCHAR(64),
	INDEX idx_single_to (to_id, sequence)
);

CREATE TABLE IF NOT EXISTS im_group_message (
	message_id   VARCHAR(64) PRIMARY KEY,
	group_id     VARCHAR(64) NOT NULL,
	from_id      BIGINT UNSIGNED NOT NULL,
	body         TEXT NOT NULL,
	time         BIGINT NOT NULL,
	content_type INT NOT NULL,
	sequence     BIGINT NOT NULL,
	del_flag     INT NOT NULL DEFAULT 1,
	reply_to     VARCHAR(64),
	INDEX idx_group_id (group_id, sequence)
);

CREATE TABLE IF NOT EXISTS im_chat (
	chat_id       VARCHAR(64) NOT NULL,
	chat_type     INT NOT NULL,
	owner_id      BIGINT UNSIGNED NOT NULL,
	to_id         BIGINT UNSIGNED NOT NULL,
	is_top        TINYINT NOT NULL DEFAULT 0,
	is_mute       TINYINT NOT NULL DEFAULT 0,
	sequence      BIGINT NOT NULL DEFAULT 0,
	read_sequence BIGINT NOT NULL DEFAULT 0,
	remark        VARCHAR(256),
	del_flag      INT NOT NULL DEFAULT 1,
	PRIMARY KEY (chat_id, owner_id, chat_type)
);

CREATE TABLE IF NOT EXISTS subscriptions (
	subscription_id VARCHAR(64) PRIMARY KEY,
	user_id         BIGINT UNSIGNED NOT NULL,
	created_at      DATETIME NOT NULL,
	INDEX idx_sub_user (user_id)
);
`
