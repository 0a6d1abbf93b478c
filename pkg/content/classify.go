package content

import (
	"net/url"
	"strings"
)

// Kind is the ingestion path a source URL takes.
type Kind int

const (
	// KindWeb is fetched, normalized and passed through LLM extraction.
	KindWeb Kind = iota
	// KindPodcast is resolved to episode audio and transcribed.
	KindPodcast
	// KindVideo is recognized but not supported.
	KindVideo
)

func (k Kind) String() string {
	switch k {
	case KindPodcast:
		return "podcast"
	case KindVideo:
		return "video"
	default:
		return "web"
	}
}

var (
	podcastHosts = []string{"podcasts.apple.com"}
	videoHosts   = []string{"youtube.com", "youtu.be"}
)

// Classify picks the ingestion path for rawURL from its host.
// Anything unrecognized, including unparsable URLs, is treated as a web page.
func Classify(rawURL string) Kind {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return KindWeb
	}
	host := strings.ToLower(u.Hostname())
	if hostMatches(host, podcastHosts) {
		return KindPodcast
	}
	if hostMatches(host, videoHosts) {
		return KindVideo
	}
	return KindWeb
}

func hostMatches(host string, domains []string) bool {
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
