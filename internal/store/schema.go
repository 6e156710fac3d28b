package store

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"tweetnorm/internal/logging"
)

// Tables lists the normalized tables in write order.
var Tables = []string{"urls", "users", "tweets", "tweet_urls", "tweet_tags", "tweet_mentions", "tweet_media"}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS urls (
	  id_urls BIGSERIAL PRIMARY KEY,
	  url TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS users (
	  id_users BIGINT PRIMARY KEY,
	  created_at TIMESTAMPTZ,
	  updated_at TIMESTAMPTZ,
	  id_urls BIGINT REFERENCES urls(id_urls),
	  friends_count INTEGER,
	  listed_count INTEGER,
	  favourites_count INTEGER,
	  statuses_count INTEGER,
	  protected BOOLEAN,
	  verified BOOLEAN,
	  screen_name TEXT,
	  name TEXT,
	  location TEXT,
	  description TEXT,
	  withheld_in_countries TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS tweets (
	  id_tweets BIGINT PRIMARY KEY,
	  id_users BIGINT NOT NULL REFERENCES users(id_users),
	  created_at TIMESTAMPTZ,
	  in_reply_to_status_id BIGINT,
	  in_reply_to_user_id BIGINT REFERENCES users(id_users),
	  quoted_status_id BIGINT,
	  geo TEXT,
	  retweet_count INTEGER,
	  quote_count INTEGER,
	  favorite_count INTEGER,
	  withheld_copyright BOOLEAN,
	  withheld_in_countries TEXT,
	  place_name TEXT,
	  country_code TEXT,
	  state_code TEXT,
	  lang TEXT,
	  text TEXT,
	  source TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS tweets_index_id_users ON tweets(id_users)`,
	`CREATE TABLE IF NOT EXISTS tweet_urls (
	  id_tweets BIGINT NOT NULL REFERENCES tweets(id_tweets),
	  id_urls BIGINT NOT NULL REFERENCES urls(id_urls),
	  PRIMARY KEY (id_tweets, id_urls)
	)`,
	`CREATE TABLE IF NOT EXISTS tweet_mentions (
	  id_tweets BIGINT NOT NULL REFERENCES tweets(id_tweets),
	  id_users BIGINT NOT NULL REFERENCES users(id_users),
	  PRIMARY KEY (id_tweets, id_users)
	)`,
	`CREATE INDEX IF NOT EXISTS tweet_mentions_index_id_users ON tweet_mentions(id_users)`,
	`CREATE TABLE IF NOT EXISTS tweet_tags (
	  id_tweets BIGINT NOT NULL REFERENCES tweets(id_tweets),
	  tag TEXT NOT NULL,
	  PRIMARY KEY (id_tweets, tag)
	)`,
	`CREATE INDEX IF NOT EXISTS tweet_tags_index_tag ON tweet_tags(tag)`,
	`CREATE TABLE IF NOT EXISTS tweet_media (
	  id_tweets BIGINT NOT NULL REFERENCES tweets(id_tweets),
	  id_urls BIGINT NOT NULL REFERENCES urls(id_urls),
	  type TEXT NOT NULL,
	  PRIMARY KEY (id_tweets, id_urls, type)
	)`,
}

// SQLite declares TIMESTAMP so the driver scans the columns back as time.Time.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS urls (
	  id_urls INTEGER PRIMARY KEY AUTOINCREMENT,
	  url TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS users (
	  id_users INTEGER PRIMARY KEY,
	  created_at TIMESTAMP,
	  updated_at TIMESTAMP,
	  id_urls INTEGER REFERENCES urls(id_urls),
	  friends_count INTEGER,
	  listed_count INTEGER,
	  favourites_count INTEGER,
	  statuses_count INTEGER,
	  protected BOOLEAN,
	  verified BOOLEAN,
	  screen_name TEXT,
	  name TEXT,
	  location TEXT,
	  description TEXT,
	  withheld_in_countries TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS tweets (
	  id_tweets INTEGER PRIMARY KEY,
	  id_users INTEGER NOT NULL REFERENCES users(id_users),
	  created_at TIMESTAMP,
	  in_reply_to_status_id INTEGER,
	  in_reply_to_user_id INTEGER REFERENCES users(id_users),
	  quoted_status_id INTEGER,
	  geo TEXT,
	  retweet_count INTEGER,
	  quote_count INTEGER,
	  favorite_count INTEGER,
	  withheld_copyright BOOLEAN,
	  withheld_in_countries TEXT,
	  place_name TEXT,
	  country_code TEXT,
	  state_code TEXT,
	  lang TEXT,
	  text TEXT,
	  source TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS tweets_index_id_users ON tweets(id_users)`,
	`CREATE TABLE IF NOT EXISTS tweet_urls (
	  id_tweets INTEGER NOT NULL REFERENCES tweets(id_tweets),
	  id_urls INTEGER NOT NULL REFERENCES urls(id_urls),
	  PRIMARY KEY (id_tweets, id_urls)
	)`,
	`CREATE TABLE IF NOT EXISTS tweet_mentions (
	  id_tweets INTEGER NOT NULL REFERENCES tweets(id_tweets),
	  id_users INTEGER NOT NULL REFERENCES users(id_users),
	  PRIMARY KEY (id_tweets, id_users)
	)`,
	`CREATE INDEX IF NOT EXISTS tweet_mentions_index_id_users ON tweet_mentions(id_users)`,
	`CREATE TABLE IF NOT EXISTS tweet_tags (
	  id_tweets INTEGER NOT NULL REFERENCES tweets(id_tweets),
	  tag TEXT NOT NULL,
	  PRIMARY KEY (id_tweets, tag)
	)`,
	`CREATE INDEX IF NOT EXISTS tweet_tags_index_tag ON tweet_tags(tag)`,
	`CREATE TABLE IF NOT EXISTS tweet_media (
	  id_tweets INTEGER NOT NULL REFERENCES tweets(id_tweets),
	  id_urls INTEGER NOT NULL REFERENCES urls(id_urls),
	  type TEXT NOT NULL,
	  PRIMARY KEY (id_tweets, id_urls, type)
	)`,
}

const (
	tagTotalSelect = `SELECT
	  row_number() OVER (ORDER BY count(*) DESC, tag) AS tag_rank,
	  tag,
	  count(*) AS total
	FROM tweet_tags
	GROUP BY tag`

	tagPairSelect = `SELECT
	  t1.tag AS tag1,
	  t2.tag AS tag2,
	  count(*) AS total
	FROM tweet_tags t1
	JOIN tweet_tags t2 ON t1.id_tweets = t2.id_tweets
	GROUP BY t1.tag, t2.tag`
)

var postgresViews = []string{
	`CREATE MATERIALIZED VIEW IF NOT EXISTS tweet_tags_total AS ` + tagTotalSelect,
	`CREATE MATERIALIZED VIEW IF NOT EXISTS tweet_tags_cooccurrence AS ` + tagPairSelect,
}

var sqliteViews = []string{
	`CREATE VIEW IF NOT EXISTS tweet_tags_total AS ` + tagTotalSelect,
	`CREATE VIEW IF NOT EXISTS tweet_tags_cooccurrence AS ` + tagPairSelect,
}

// Migrate creates the tables, indexes and tag views when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := append(append([]string{}, s.dialect.schema...), s.dialect.views...)
	return WithRetry(ctx, s.retry, "migrate", func(ctx context.Context) error {
		return s.inTx(ctx, func(tx *sqlx.Tx) error {
			for _, stmt := range stmts {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return classify(errors.Wrap(err, firstLine(stmt)), "migrate")
				}
			}
			logging.Debug("schema_ready", map[string]any{"dialect": s.dialect.Name, "statements": len(stmts)})
			return nil
		})
	})
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
