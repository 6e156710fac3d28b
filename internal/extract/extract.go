// Package extract turns one decoded archive record into candidate rows.
package extract

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"tweetnorm/internal/model"
	"tweetnorm/internal/util"
)

// Level is the nesting depth of a post within its record.
type Level int

const (
	// TopLevel is the post the record is about.
	TopLevel Level = iota
	// Embedded is a quoted or retweeted post carried inside the top-level post.
	Embedded
)

// MaxLevel is the deepest level that is extracted. Posts embedded inside
// embedded posts are ignored.
const MaxLevel = Embedded

type frame struct {
	rec   *model.RawTweet
	level Level
}

// Extract walks rec and its embedded posts and returns every row they imply.
// It fails with model.ErrMalformedRecord when the top-level post lacks an id
// or an author id; embedded posts with the same defect are skipped.
func Extract(rec *model.RawTweet) (model.Rows, error) {
	if rec == nil {
		return model.Rows{}, errors.Wrap(model.ErrMalformedRecord, "empty record")
	}
	id, ok := rec.TweetID()
	if !ok {
		return model.Rows{}, errors.Wrap(model.ErrMalformedRecord, "post has no id")
	}
	if err := checkAuthor(rec); err != nil {
		return model.Rows{}, errors.Wrapf(err, "post %d", id)
	}

	rows := model.Rows{Key: id}
	frames := []frame{{rec: rec, level: TopLevel}}
	for i := 0; i < len(frames); i++ {
		f := frames[i]
		if f.level > TopLevel {
			if _, ok := f.rec.TweetID(); !ok {
				continue
			}
			if checkAuthor(f.rec) != nil {
				continue
			}
		}
		extractPost(&rows, f.rec)
		if f.level < MaxLevel {
			for _, emb := range []*model.RawTweet{f.rec.QuotedStatus, f.rec.RetweetedStatus} {
				if emb != nil {
					frames = append(frames, frame{rec: emb, level: f.level + 1})
				}
			}
		}
	}
	return rows, nil
}

func checkAuthor(rec *model.RawTweet) error {
	if rec.User == nil {
		return errors.Wrap(model.ErrMalformedRecord, "post has no author")
	}
	if _, ok := rec.User.UserID(); !ok {
		return errors.Wrap(model.ErrMalformedRecord, "author has no id")
	}
	return nil
}

// extractPost appends the rows of a single post. Callers have checked the ids.
func extractPost(rows *model.Rows, rec *model.RawTweet) {
	id, _ := rec.TweetID()
	author := authorRow(rec)
	if author.URL != nil {
		rows.URLs = append(rows.URLs, *author.URL)
	}
	rows.Users = append(rows.Users, author)

	if rec.InReplyToUserID != nil {
		rows.Users = append(rows.Users, model.User{
			ID:         *rec.InReplyToUserID,
			ScreenName: util.CleanText(rec.InReplyToScreenName),
		})
	}

	rows.Tweets = append(rows.Tweets, postRow(id, author.ID, rec))

	ents := entities(rec)
	if ents != nil {
		for _, u := range ents.URLs {
			link := u.ExpandedURL
			if link == nil || *link == "" {
				link = u.URL
			}
			if link == nil || *link == "" {
				continue
			}
			s := util.RemoveNulls(*link)
			rows.URLs = append(rows.URLs, s)
			rows.TweetURLs = append(rows.TweetURLs, model.TweetURL{TweetID: id, URL: s})
		}
		for _, m := range ents.UserMentions {
			uid, ok := m.UserID()
			if !ok {
				continue
			}
			rows.Users = append(rows.Users, model.User{
				ID:         uid,
				ScreenName: util.CleanText(m.ScreenName),
				Name:       util.CleanText(m.Name),
			})
			rows.Mentions = append(rows.Mentions, model.TweetMention{TweetID: id, UserID: uid})
		}
		for _, h := range ents.Hashtags {
			rows.Tags = append(rows.Tags, model.TweetTag{TweetID: id, Tag: util.FoldTag("#", h.Text)})
		}
		for _, c := range ents.Symbols {
			rows.Tags = append(rows.Tags, model.TweetTag{TweetID: id, Tag: util.FoldTag("$", c.Text)})
		}
	}

	for _, m := range media(rec) {
		link := m.MediaURL
		if link == nil || *link == "" {
			link = m.MediaURLHTTPS
		}
		if link == nil || *link == "" || m.Type == nil {
			continue
		}
		s := util.RemoveNulls(*link)
		rows.URLs = append(rows.URLs, s)
		rows.Media = append(rows.Media, model.TweetMedia{TweetID: id, URL: s, Type: util.RemoveNulls(*m.Type)})
	}
}

func authorRow(rec *model.RawTweet) model.User {
	u := rec.User
	uid, _ := u.UserID()
	row := model.User{
		ID:                  uid,
		CreatedAt:           u.CreatedAt.Ptr(),
		UpdatedAt:           rec.CreatedAt.Ptr(),
		FriendsCount:        u.FriendsCount,
		ListedCount:         u.ListedCount,
		FavouritesCount:     u.FavouritesCount,
		StatusesCount:       u.StatusesCount,
		Protected:           u.Protected,
		Verified:            u.Verified,
		ScreenName:          util.CleanText(u.ScreenName),
		Name:                util.CleanText(u.Name),
		Location:            util.CleanText(u.Location),
		Description:         util.CleanText(u.Description),
		WithheldInCountries: util.JoinCountries(u.WithheldInCountries),
	}
	if u.URL != nil && *u.URL != "" {
		row.URL = util.CleanText(u.URL)
	}
	return row
}

func postRow(id, authorID int64, rec *model.RawTweet) model.Tweet {
	text := rec.Text
	if rec.ExtendedTweet != nil && rec.ExtendedTweet.FullText != nil {
		text = rec.ExtendedTweet.FullText
	}
	row := model.Tweet{
		ID:                  id,
		UserID:              authorID,
		CreatedAt:           rec.CreatedAt.Ptr(),
		InReplyToStatusID:   rec.InReplyToStatusID,
		InReplyToUserID:     rec.InReplyToUserID,
		QuotedStatusID:      rec.QuotedStatusID,
		Geo:                 geometry(rec),
		RetweetCount:        rec.RetweetCount,
		QuoteCount:          rec.QuoteCount,
		FavoriteCount:       rec.FavoriteCount,
		WithheldCopyright:   rec.WithheldCopyright,
		WithheldInCountries: util.JoinCountries(rec.WithheldInCountries),
		Lang:                util.CleanText(rec.Lang),
		Text:                util.CleanText(text),
		Source:              util.CleanText(rec.Source),
	}
	if p := rec.Place; p != nil {
		row.PlaceName = util.CleanText(p.FullName)
		if p.CountryCode != nil && *p.CountryCode != "" {
			cc := strings.ToLower(util.RemoveNulls(*p.CountryCode))
			row.CountryCode = &cc
			if cc == "us" && p.FullName != nil {
				row.StateCode = stateCode(*p.FullName)
			}
		}
	}
	return row
}

// stateCode takes the last comma-separated part of a US place name, kept
// only when it looks like a two-letter state code.
func stateCode(fullName string) *string {
	parts := strings.Split(fullName, ",")
	s := strings.ToLower(strings.TrimSpace(util.RemoveNulls(parts[len(parts)-1])))
	if s == "" || len(s) > 2 {
		return nil
	}
	return &s
}

func entities(rec *model.RawTweet) *model.RawEntities {
	if rec.ExtendedTweet != nil && rec.ExtendedTweet.Entities != nil {
		return rec.ExtendedTweet.Entities
	}
	return rec.Entities
}

func media(rec *model.RawTweet) []model.RawMedia {
	if rec.ExtendedTweet != nil && rec.ExtendedTweet.ExtendedEntities != nil {
		return rec.ExtendedTweet.ExtendedEntities.Media
	}
	if rec.ExtendedEntities != nil {
		return rec.ExtendedEntities.Media
	}
	return nil
}

// geometry renders the post location as WKT: the exact point when present,
// otherwise the place bounding box as a closed multipolygon.
func geometry(rec *model.RawTweet) *string {
	if rec.Geo != nil && len(rec.Geo.Coordinates) >= 2 {
		s := "POINT(" + coord(rec.Geo.Coordinates[0]) + " " + coord(rec.Geo.Coordinates[1]) + ")"
		return &s
	}
	if rec.Place == nil || rec.Place.BoundingBox == nil || len(rec.Place.BoundingBox.Coordinates) == 0 {
		return nil
	}
	rings := make([]string, 0, len(rec.Place.BoundingBox.Coordinates))
	for _, ring := range rec.Place.BoundingBox.Coordinates {
		if len(ring) == 0 {
			return nil
		}
		pts := make([]string, 0, len(ring)+1)
		for _, pt := range ring {
			if len(pt) < 2 {
				return nil
			}
			pts = append(pts, coord(pt[0])+" "+coord(pt[1]))
		}
		pts = append(pts, pts[0])
		rings = append(rings, "("+strings.Join(pts, ",")+")")
	}
	s := "MULTIPOLYGON((" + strings.Join(rings, ",") + "))"
	return &s
}

func coord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
