package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrInvalidURL is recorded for URLs that are not absolute http(s) URLs.
	ErrInvalidURL = errors.New("invalid url")
	// ErrDuplicateURL marks a URL already seen earlier in the same bundle.
	ErrDuplicateURL = errors.New("duplicate url")
)

// URLFilter screens a URL before it is fetched. A non-nil error rejects it.
type URLFilter interface {
	Screen(ctx context.Context, rawURL string) error
}

// FilterFunc adapts a function to URLFilter.
type FilterFunc func(ctx context.Context, rawURL string) error

func (f FilterFunc) Screen(ctx context.Context, rawURL string) error { return f(ctx, rawURL) }

// ValidURLFilter rejects anything but absolute http and https URLs.
type ValidURLFilter struct{}

func (ValidURLFilter) Screen(ctx context.Context, rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidURL, rawURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	return nil
}

// duplicateFilter rejects URLs already seen in one ingestion run.
type duplicateFilter struct {
	seen map[string]bool
}

func newDuplicateFilter() *duplicateFilter {
	return &duplicateFilter{seen: make(map[string]bool)}
}

func (f *duplicateFilter) Screen(ctx context.Context, rawURL string) error {
	key := strings.TrimSpace(rawURL)
	if f.seen[key] {
		return fmt.Errorf("%w: %s", ErrDuplicateURL, rawURL)
	}
	f.seen[key] = true
	return nil
}

type screened struct {
	url string
	err error
}

// screenURLs runs every filter over urls in order. The first rejecting filter
// wins; later filters do not see that URL.
func screenURLs(ctx context.Context, urls []string, filters ...URLFilter) []screened {
	out := make([]screened, len(urls))
	for i, u := range urls {
		out[i].url = strings.TrimSpace(u)
		for _, f := range filters {
			if err := f.Screen(ctx, out[i].url); err != nil {
				out[i].err = err
				break
			}
		}
	}
	return out
}
