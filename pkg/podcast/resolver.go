package podcast

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/thefalc/podcast-research-agent/pkg/httpclient"
	"github.com/thefalc/podcast-research-agent/pkg/logging"
)

// DefaultCatalogURL is the public podcast catalog lookup endpoint.
const DefaultCatalogURL = "https://itunes.apple.com/lookup"

type catalogResponse struct {
	ResultCount int `json:"resultCount"`
	Results     []struct {
		FeedURL string `json:"feedUrl"`
	} `json:"results"`
}

// Resolver turns a podcast episode page URL into a downloadable audio URL.
type Resolver struct {
	catalogURL string
	api        *httpclient.HTTPClient
	web        *httpclient.HTTPClient
	logger     *zap.Logger
}

// NewResolver creates a resolver. An empty catalogURL uses DefaultCatalogURL.
func NewResolver(catalogURL string, api, web *httpclient.HTTPClient, logger *zap.Logger) *Resolver {
	if catalogURL == "" {
		catalogURL = DefaultCatalogURL
	}
	if api == nil {
		api = httpclient.NewClient(httpclient.APIClient)
	}
	if web == nil {
		web = httpclient.NewClient(httpclient.BrowserClient)
	}
	return &Resolver{
		catalogURL: catalogURL,
		api:        api,
		web:        web,
		logger:     logging.OrNop(logger).Named("podcast"),
	}
}

// ResolveAudioURL finds the enclosure URL for the episode behind episodeURL.
func (r *Resolver) ResolveAudioURL(ctx context.Context, episodeURL string) (string, error) {
	ref, err := ParseEpisodeURL(episodeURL)
	if err != nil {
		return "", err
	}

	feedURL, err := r.LookupFeed(ctx, ref.FeedID)
	if err != nil {
		return "", err
	}
	r.logger.Debug("resolved feed", zap.String("feedId", ref.FeedID), zap.String("feedUrl", feedURL))

	episodes, err := r.FetchEpisodes(ctx, feedURL)
	if err != nil {
		return "", err
	}

	ep, err := MatchEpisode(episodes, ref.TitleSlug)
	if err != nil {
		return "", err
	}
	r.logger.Info("matched episode", zap.String("title", ep.Title), zap.String("audioUrl", ep.AudioURL))
	return ep.AudioURL, nil
}

// LookupFeed asks the catalog for the feed URL of a podcast id.
func (r *Resolver) LookupFeed(ctx context.Context, feedID string) (string, error) {
	u, err := url.Parse(r.catalogURL)
	if err != nil {
		return "", fmt.Errorf("parse catalog url: %w", err)
	}
	q := u.Query()
	q.Set("id", feedID)
	q.Set("entity", "podcast")
	u.RawQuery = q.Encode()

	var resp catalogResponse
	if err := r.api.GetJSON(ctx, u.String(), &resp); err != nil {
		return "", fmt.Errorf("%w: catalog lookup for %s: %v", ErrFeedNotFound, feedID, err)
	}
	if resp.ResultCount == 0 || len(resp.Results) == 0 || resp.Results[0].FeedURL == "" {
		return "", fmt.Errorf("%w: no feed url for id %s", ErrFeedNotFound, feedID)
	}
	return resp.Results[0].FeedURL, nil
}

// FetchEpisodes downloads and parses a feed into episodes in feed order.
// Items without an audio enclosure are skipped.
func (r *Resolver) FetchEpisodes(ctx context.Context, feedURL string) ([]Episode, error) {
	resp, err := r.web.Fetch(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedNotFound, err)
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse feed %s: %v", ErrFeedNotFound, feedURL, err)
	}

	episodes := make([]Episode, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil || len(item.Enclosures) == 0 || item.Enclosures[0].URL == "" {
			continue
		}
		episodes = append(episodes, Episode{Title: item.Title, AudioURL: item.Enclosures[0].URL})
	}
	return episodes, nil
}
