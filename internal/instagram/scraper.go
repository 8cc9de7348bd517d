// Package instagram crawls tracked Instagram accounts and stores new posts
// for event extraction.
package instagram

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRateLimited is returned when Instagram asks the client to slow down.
	ErrRateLimited = errors.New("instagram: rate limited")
	// ErrProfileNotFound is returned for unknown or removed accounts.
	ErrProfileNotFound = errors.New("instagram: profile not found")
)

// ProfileInfo is the public state of an account.
type ProfileInfo struct {
	Username      string
	FullName      string
	Bio           string
	Followers     int
	IsVerified    bool
	IsPrivate     bool
	MediaCount    int
	ProfilePicURL string
}

// PostInfo is a post as seen on the account's timeline. ImageURLs holds only
// still images; videos are dropped.
type PostInfo struct {
	Shortcode string
	PostedAt  time.Time
	Caption   string
	ImageURLs []string
}

// Scraper reads public account data. ListPosts returns posts newest first.
type Scraper interface {
	FetchProfile(ctx context.Context, username string) (ProfileInfo, error)
	ListPosts(ctx context.Context, username string) ([]PostInfo, error)
}
