package model

// Kind names a row kind. Kinds are written in the order of WriteOrder.
type Kind int

const (
	KindURL Kind = iota
	KindUser
	KindTweet
	KindTweetURL
	KindTag
	KindMention
	KindMedia
)

// WriteOrder is the dependency order: referenced rows before referencing rows.
var WriteOrder = []Kind{KindURL, KindUser, KindTweet, KindTweetURL, KindTag, KindMention, KindMedia}

func (k Kind) String() string {
	switch k {
	case KindURL:
		return "urls"
	case KindUser:
		return "users"
	case KindTweet:
		return "tweets"
	case KindTweetURL:
		return "tweet_urls"
	case KindTag:
		return "tweet_tags"
	case KindMention:
		return "tweet_mentions"
	case KindMedia:
		return "tweet_media"
	}
	return "unknown"
}

// Rows holds the candidate rows extracted from one or more records.
type Rows struct {
	// Key is the top-level post id of the record the rows came from.
	Key int64

	URLs      []string
	Users     []User
	Tweets    []Tweet
	TweetURLs []TweetURL
	Tags      []TweetTag
	Mentions  []TweetMention
	Media     []TweetMedia
}

// Append adds all of o's rows after r's.
func (r *Rows) Append(o Rows) {
	r.URLs = append(r.URLs, o.URLs...)
	r.Users = append(r.Users, o.Users...)
	r.Tweets = append(r.Tweets, o.Tweets...)
	r.TweetURLs = append(r.TweetURLs, o.TweetURLs...)
	r.Tags = append(r.Tags, o.Tags...)
	r.Mentions = append(r.Mentions, o.Mentions...)
	r.Media = append(r.Media, o.Media...)
}

// Count returns the number of candidate rows of kind k.
func (r *Rows) Count(k Kind) int {
	switch k {
	case KindURL:
		return len(r.URLs)
	case KindUser:
		return len(r.Users)
	case KindTweet:
		return len(r.Tweets)
	case KindTweetURL:
		return len(r.TweetURLs)
	case KindTag:
		return len(r.Tags)
	case KindMention:
		return len(r.Mentions)
	case KindMedia:
		return len(r.Media)
	}
	return 0
}
