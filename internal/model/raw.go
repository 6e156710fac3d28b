package model

import (
	"bytes"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// RawTweet is an archived post object as found on one line of an input stream.
type RawTweet struct {
	ID                  *int64               `json:"id"`
	IDStr               string               `json:"id_str"`
	CreatedAt           *Time                `json:"created_at"`
	Text                *string              `json:"text"`
	Source              *string              `json:"source"`
	Lang                *string              `json:"lang"`
	InReplyToStatusID   *int64               `json:"in_reply_to_status_id"`
	InReplyToUserID     *int64               `json:"in_reply_to_user_id"`
	InReplyToScreenName *string              `json:"in_reply_to_screen_name"`
	QuotedStatusID      *int64               `json:"quoted_status_id"`
	RetweetCount        *int64               `json:"retweet_count"`
	QuoteCount          *int64               `json:"quote_count"`
	FavoriteCount       *int64               `json:"favorite_count"`
	WithheldCopyright   *bool                `json:"withheld_copyright"`
	WithheldInCountries []string             `json:"withheld_in_countries"`
	User                *RawUser             `json:"user"`
	Geo                 *RawGeo              `json:"geo"`
	Place               *RawPlace            `json:"place"`
	Entities            *RawEntities         `json:"entities"`
	ExtendedEntities    *RawExtendedEntities `json:"extended_entities"`
	ExtendedTweet       *RawExtendedTweet    `json:"extended_tweet"`
	QuotedStatus        *RawTweet            `json:"quoted_status"`
	RetweetedStatus     *RawTweet            `json:"retweeted_status"`
}

// TweetID returns id, falling back to id_str.
func (t *RawTweet) TweetID() (int64, bool) {
	return pickID(t.ID, t.IDStr)
}

// RawUser is the author object embedded in a post.
type RawUser struct {
	ID                  *int64   `json:"id"`
	IDStr               string   `json:"id_str"`
	CreatedAt           *Time    `json:"created_at"`
	ScreenName          *string  `json:"screen_name"`
	Name                *string  `json:"name"`
	Location            *string  `json:"location"`
	Description         *string  `json:"description"`
	URL                 *string  `json:"url"`
	Protected           *bool    `json:"protected"`
	Verified            *bool    `json:"verified"`
	FriendsCount        *int64   `json:"friends_count"`
	ListedCount         *int64   `json:"listed_count"`
	FavouritesCount     *int64   `json:"favourites_count"`
	StatusesCount       *int64   `json:"statuses_count"`
	WithheldInCountries []string `json:"withheld_in_countries"`
}

// UserID returns id, falling back to id_str.
func (u *RawUser) UserID() (int64, bool) {
	return pickID(u.ID, u.IDStr)
}

type RawEntities struct {
	Hashtags     []RawTag     `json:"hashtags"`
	Symbols      []RawTag     `json:"symbols"`
	URLs         []RawURL     `json:"urls"`
	UserMentions []RawMention `json:"user_mentions"`
}

type RawTag struct {
	Text string `json:"text"`
}

type RawURL struct {
	URL         *string `json:"url"`
	ExpandedURL *string `json:"expanded_url"`
}

type RawMention struct {
	ID         *int64  `json:"id"`
	IDStr      string  `json:"id_str"`
	ScreenName *string `json:"screen_name"`
	Name       *string `json:"name"`
}

// UserID returns id, falling back to id_str.
func (m *RawMention) UserID() (int64, bool) {
	return pickID(m.ID, m.IDStr)
}

type RawExtendedEntities struct {
	Media []RawMedia `json:"media"`
}

type RawMedia struct {
	MediaURL      *string `json:"media_url"`
	MediaURLHTTPS *string `json:"media_url_https"`
	Type          *string `json:"type"`
}

type RawExtendedTweet struct {
	FullText         *string              `json:"full_text"`
	Entities         *RawEntities         `json:"entities"`
	ExtendedEntities *RawExtendedEntities `json:"extended_entities"`
}

type RawGeo struct {
	Coordinates []float64 `json:"coordinates"`
}

type RawPlace struct {
	FullName    *string         `json:"full_name"`
	CountryCode *string         `json:"country_code"`
	BoundingBox *RawBoundingBox `json:"bounding_box"`
}

type RawBoundingBox struct {
	Coordinates [][][]float64 `json:"coordinates"`
}

// TwitterTimeLayout is the timestamp layout used by archived posts.
const TwitterTimeLayout = time.RubyDate

// Time decodes archive timestamps ("Wed Oct 10 20:19:24 +0000 2018").
// RFC 3339 is accepted as well.
type Time struct {
	time.Time
}

func (t *Time) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	s, err := strconv.Unquote(string(b))
	if err != nil {
		return errors.Wrap(err, "timestamp is not a string")
	}
	if s == "" {
		return nil
	}
	for _, layout := range []string{TwitterTimeLayout, time.RFC3339Nano} {
		if v, err := time.Parse(layout, s); err == nil {
			t.Time = v.UTC()
			return nil
		}
	}
	return errors.Errorf("unrecognized timestamp %q", s)
}

// Ptr returns the time as a pointer, nil when unset.
func (t *Time) Ptr() *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

func pickID(id *int64, idStr string) (int64, bool) {
	if id != nil {
		return *id, true
	}
	if idStr == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
