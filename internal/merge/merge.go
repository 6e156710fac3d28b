// Package merge combines a stored entity with a newly observed candidate.
//
// Merging only fills fields the stored state lacks. A field that is known on
// both sides keeps its stored value; differing values are reported as
// conflicts and never overwrite what was seen first.
package merge

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"tweetnorm/internal/model"
)

// Decision says what a merge requires of storage.
type Decision int

const (
	// Insert means the entity is absent and the candidate becomes its state.
	Insert Decision = iota
	// Update means the stored state gained at least one field.
	Update
	// Keep means nothing needs to be written.
	Keep
)

func (d Decision) String() string {
	switch d {
	case Insert:
		return "insert"
	case Update:
		return "update"
	}
	return "keep"
}

// Conflict records a field known on both sides with different values.
type Conflict struct {
	Kind    model.Kind
	Key     int64
	Field   string
	Kept    any
	Dropped any
	// Stable fields are not expected to change between observations.
	Stable bool
}

func (c Conflict) String() string {
	return fmt.Sprintf("%s %d: %s kept %v dropped %v", c.Kind, c.Key, c.Field, c.Kept, c.Dropped)
}

// Err returns the conflict as an error matching model.ErrMergeConflict.
func (c Conflict) Err() error {
	return errors.Wrap(model.ErrMergeConflict, c.String())
}

type filler struct {
	kind      model.Kind
	key       int64
	changed   bool
	conflicts []Conflict
}

func fill[T any](f *filler, field string, stable bool, dst **T, src *T, eq func(a, b T) bool) {
	switch {
	case src == nil:
	case *dst == nil:
		v := *src
		*dst = &v
		f.changed = true
	case !eq(**dst, *src):
		f.conflicts = append(f.conflicts, Conflict{
			Kind: f.kind, Key: f.key, Field: field,
			Kept: **dst, Dropped: *src, Stable: stable,
		})
	}
}

func same[T comparable](a, b T) bool { return a == b }

func sameTime(a, b time.Time) bool { return a.Equal(b) }

func (f *filler) decision() Decision {
	if f.changed {
		return Update
	}
	return Keep
}

// User merges cand into stored. A nil stored means the user is absent.
func User(stored *model.User, cand model.User) (model.User, Decision, []Conflict) {
	if stored == nil {
		return cand, Insert, nil
	}
	out := *stored
	f := &filler{kind: model.KindUser, key: out.ID}
	fill(f, "created_at", true, &out.CreatedAt, cand.CreatedAt, sameTime)
	fill(f, "updated_at", false, &out.UpdatedAt, cand.UpdatedAt, sameTime)
	fill(f, "id_urls", false, &out.URLID, cand.URLID, same[int64])
	fill(f, "friends_count", false, &out.FriendsCount, cand.FriendsCount, same[int64])
	fill(f, "listed_count", false, &out.ListedCount, cand.ListedCount, same[int64])
	fill(f, "favourites_count", false, &out.FavouritesCount, cand.FavouritesCount, same[int64])
	fill(f, "statuses_count", false, &out.StatusesCount, cand.StatusesCount, same[int64])
	fill(f, "protected", false, &out.Protected, cand.Protected, same[bool])
	fill(f, "verified", false, &out.Verified, cand.Verified, same[bool])
	fill(f, "screen_name", true, &out.ScreenName, cand.ScreenName, same[string])
	fill(f, "name", true, &out.Name, cand.Name, same[string])
	fill(f, "location", false, &out.Location, cand.Location, same[string])
	fill(f, "description", false, &out.Description, cand.Description, same[string])
	fill(f, "withheld_in_countries", false, &out.WithheldInCountries, cand.WithheldInCountries, same[string])
	if out.URL == nil {
		out.URL = cand.URL
	}
	return out, f.decision(), f.conflicts
}

// Tweet merges cand into stored. A nil stored means the post is absent.
// A candidate naming a different author is an identity conflict and fails
// with model.ErrConstraintViolation.
func Tweet(stored *model.Tweet, cand model.Tweet) (model.Tweet, Decision, []Conflict, error) {
	if stored == nil {
		return cand, Insert, nil, nil
	}
	if stored.UserID != cand.UserID {
		return *stored, Keep, nil, errors.Wrapf(model.ErrConstraintViolation,
			"post %d is authored by %d, candidate says %d", stored.ID, stored.UserID, cand.UserID)
	}
	out := *stored
	f := &filler{kind: model.KindTweet, key: out.ID}
	fill(f, "created_at", true, &out.CreatedAt, cand.CreatedAt, sameTime)
	fill(f, "in_reply_to_status_id", true, &out.InReplyToStatusID, cand.InReplyToStatusID, same[int64])
	fill(f, "in_reply_to_user_id", true, &out.InReplyToUserID, cand.InReplyToUserID, same[int64])
	fill(f, "quoted_status_id", true, &out.QuotedStatusID, cand.QuotedStatusID, same[int64])
	fill(f, "geo", false, &out.Geo, cand.Geo, same[string])
	fill(f, "retweet_count", false, &out.RetweetCount, cand.RetweetCount, same[int64])
	fill(f, "quote_count", false, &out.QuoteCount, cand.QuoteCount, same[int64])
	fill(f, "favorite_count", false, &out.FavoriteCount, cand.FavoriteCount, same[int64])
	fill(f, "withheld_copyright", false, &out.WithheldCopyright, cand.WithheldCopyright, same[bool])
	fill(f, "withheld_in_countries", false, &out.WithheldInCountries, cand.WithheldInCountries, same[string])
	fill(f, "place_name", false, &out.PlaceName, cand.PlaceName, same[string])
	fill(f, "country_code", false, &out.CountryCode, cand.CountryCode, same[string])
	fill(f, "state_code", false, &out.StateCode, cand.StateCode, same[string])
	fill(f, "lang", false, &out.Lang, cand.Lang, same[string])
	fill(f, "text", true, &out.Text, cand.Text, same[string])
	fill(f, "source", false, &out.Source, cand.Source, same[string])
	return out, f.decision(), f.conflicts, nil
}

// Association decides a write for a pure association row.
func Association(present bool) Decision {
	if present {
		return Keep
	}
	return Insert
}

// StableCount returns how many conflicts touch stable fields.
func StableCount(conflicts []Conflict) int {
	n := 0
	for _, c := range conflicts {
		if c.Stable {
			n++
		}
	}
	return n
}
