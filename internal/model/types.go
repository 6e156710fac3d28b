package model

import "time"

// User is a row of the users table. Nil fields are unknown, not empty.
type User struct {
	ID                  int64      `db:"id_users"`
	CreatedAt           *time.Time `db:"created_at"`
	UpdatedAt           *time.Time `db:"updated_at"`
	URLID               *int64     `db:"id_urls"`
	FriendsCount        *int64     `db:"friends_count"`
	ListedCount         *int64     `db:"listed_count"`
	FavouritesCount     *int64     `db:"favourites_count"`
	StatusesCount       *int64     `db:"statuses_count"`
	Protected           *bool      `db:"protected"`
	Verified            *bool      `db:"verified"`
	ScreenName          *string    `db:"screen_name"`
	Name                *string    `db:"name"`
	Location            *string    `db:"location"`
	Description         *string    `db:"description"`
	WithheldInCountries *string    `db:"withheld_in_countries"`

	// URL is the profile link text; resolved to URLID at write time.
	URL *string `db:"-"`
}

// UserColumns lists the users columns in the order Values returns them.
var UserColumns = []string{
	"id_users", "created_at", "updated_at", "id_urls",
	"friends_count", "listed_count", "favourites_count", "statuses_count",
	"protected", "verified", "screen_name", "name", "location", "description",
	"withheld_in_countries",
}

// Key returns the primary key.
func (u User) Key() int64 { return u.ID }

// Values returns the column values in UserColumns order.
func (u User) Values() []any {
	return []any{
		u.ID, Value(u.CreatedAt), Value(u.UpdatedAt), Value(u.URLID),
		Value(u.FriendsCount), Value(u.ListedCount), Value(u.FavouritesCount), Value(u.StatusesCount),
		Value(u.Protected), Value(u.Verified), Value(u.ScreenName), Value(u.Name), Value(u.Location), Value(u.Description),
		Value(u.WithheldInCountries),
	}
}

// Tweet is a row of the tweets table.
type Tweet struct {
	ID                  int64      `db:"id_tweets"`
	UserID              int64      `db:"id_users"`
	CreatedAt           *time.Time `db:"created_at"`
	InReplyToStatusID   *int64     `db:"in_reply_to_status_id"`
	InReplyToUserID     *int64     `db:"in_reply_to_user_id"`
	QuotedStatusID      *int64     `db:"quoted_status_id"`
	Geo                 *string    `db:"geo"`
	RetweetCount        *int64     `db:"retweet_count"`
	QuoteCount          *int64     `db:"quote_count"`
	FavoriteCount       *int64     `db:"favorite_count"`
	WithheldCopyright   *bool      `db:"withheld_copyright"`
	WithheldInCountries *string    `db:"withheld_in_countries"`
	PlaceName           *string    `db:"place_name"`
	CountryCode         *string    `db:"country_code"`
	StateCode           *string    `db:"state_code"`
	Lang                *string    `db:"lang"`
	Text                *string    `db:"text"`
	Source              *string    `db:"source"`
}

// TweetColumns lists the tweets columns in the order Values returns them.
var TweetColumns = []string{
	"id_tweets", "id_users", "created_at",
	"in_reply_to_status_id", "in_reply_to_user_id", "quoted_status_id",
	"geo", "retweet_count", "quote_count", "favorite_count",
	"withheld_copyright", "withheld_in_countries",
	"place_name", "country_code", "state_code", "lang", "text", "source",
}

// Key returns the primary key.
func (t Tweet) Key() int64 { return t.ID }

// Values returns the column values in TweetColumns order.
func (t Tweet) Values() []any {
	return []any{
		t.ID, t.UserID, Value(t.CreatedAt),
		Value(t.InReplyToStatusID), Value(t.InReplyToUserID), Value(t.QuotedStatusID),
		Value(t.Geo), Value(t.RetweetCount), Value(t.QuoteCount), Value(t.FavoriteCount),
		Value(t.WithheldCopyright), Value(t.WithheldInCountries),
		Value(t.PlaceName), Value(t.CountryCode), Value(t.StateCode), Value(t.Lang), Value(t.Text), Value(t.Source),
	}
}

// TweetURL links a post to a URL it embeds.
type TweetURL struct {
	TweetID int64
	URL     string
}

// TweetTag is a case-folded hashtag ("#x") or cashtag ("$x") on a post.
type TweetTag struct {
	TweetID int64
	Tag     string
}

// TweetMention links a post to a user it mentions.
type TweetMention struct {
	TweetID int64
	UserID  int64
}

// TweetMedia links a post to a media URL and its media type.
type TweetMedia struct {
	TweetID int64
	URL     string
	Type    string
}

// Value dereferences p for use as a query argument; nil stays nil.
func Value[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }
