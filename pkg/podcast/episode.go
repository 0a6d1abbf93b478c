package podcast

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	// ErrMalformedURL is returned when an episode URL has no feed id or title slug.
	ErrMalformedURL = errors.New("malformed podcast episode url")
	// ErrFeedNotFound is returned when the catalog has no feed for the id.
	ErrFeedNotFound = errors.New("podcast feed not found")
	// ErrEpisodeNotFound is returned when no feed episode matches the title slug.
	ErrEpisodeNotFound = errors.New("podcast episode not found")
)

var (
	feedIDPattern    = regexp.MustCompile(`/id(\d+)\b`)
	titleSlugPattern = regexp.MustCompile(`podcast/([^/]+)/`)

	nonSlugChars = regexp.MustCompile(`[^a-z0-9 -]`)
	whitespace   = regexp.MustCompile(`\s+`)
	hyphenRuns   = regexp.MustCompile(`-+`)
)

// EpisodeRef is what can be read off a podcast episode page URL.
type EpisodeRef struct {
	FeedID    string
	TitleSlug string
}

// Episode is one feed entry with a downloadable enclosure.
type Episode struct {
	Title    string
	AudioURL string
}

// ParseEpisodeURL extracts the numeric feed id and the title slug from an episode URL
// such as https://podcasts.apple.com/us/podcast/some-episode/id123456789?i=1000.
func ParseEpisodeURL(rawURL string) (EpisodeRef, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return EpisodeRef{}, fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}

	id := feedIDPattern.FindStringSubmatch(u.Path)
	if id == nil {
		return EpisodeRef{}, fmt.Errorf("%w: no feed id in %q", ErrMalformedURL, rawURL)
	}

	title := titleSlugPattern.FindStringSubmatch(u.Path)
	if title == nil {
		return EpisodeRef{}, fmt.Errorf("%w: no episode title in %q", ErrMalformedURL, rawURL)
	}

	// u.Path is already decoded; normalize the same way feed titles are.
	slug := Slug(title[1])
	if slug == "" {
		return EpisodeRef{}, fmt.Errorf("%w: no episode title in %q", ErrMalformedURL, rawURL)
	}
	return EpisodeRef{FeedID: id[1], TitleSlug: slug}, nil
}

// Slug normalizes an episode title for comparison with a URL title slug.
// The result is lowercase and contains only letters, digits and single hyphens,
// and Slug(Slug(s)) == Slug(s).
func Slug(title string) string {
	s := strings.ToLower(title)
	s = nonSlugChars.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	s = whitespace.ReplaceAllString(s, "-")
	return hyphenRuns.ReplaceAllString(s, "-")
}

// MatchEpisode returns the first episode, in feed order, whose title slug contains titleSlug.
func MatchEpisode(episodes []Episode, titleSlug string) (Episode, error) {
	for _, ep := range episodes {
		if strings.Contains(Slug(ep.Title), titleSlug) {
			return ep, nil
		}
	}
	return Episode{}, fmt.Errorf("%w: %q", ErrEpisodeNotFound, titleSlug)
}
