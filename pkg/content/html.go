package content

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
)

// NormalizeHTML strips markup, scripts and styles from an HTML page and collapses whitespace.
func NormalizeHTML(htmlContent string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	doc.Find("script, style, noscript, template, svg").Remove()

	// Block elements run together in Text(); pad them so words stay separate.
	doc.Find("p, div, br, li, h1, h2, h3, h4, h5, h6, tr, td, section, article").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})

	return CollapseWhitespace(doc.Text()), nil
}

// CollapseWhitespace trims text and replaces every whitespace run with one space.
func CollapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// minArticleChars is the shortest readability result trusted over the full page.
const minArticleChars = 200

// ExtractArticle returns the page title and its main text. The readability
// article body is used when it is substantial, otherwise the whole normalized page.
func ExtractArticle(htmlContent string) (title, text string, err error) {
	article, rerr := readability.FromReader(strings.NewReader(htmlContent), nil)
	if rerr == nil {
		title = strings.TrimSpace(article.Title)
		if article.Content != "" {
			if body, nerr := NormalizeHTML(article.Content); nerr == nil && len(body) >= minArticleChars {
				text = body
			}
		}
	}
	if text == "" {
		if text, err = NormalizeHTML(htmlContent); err != nil {
			return "", "", err
		}
	}
	if title == "" {
		title, _ = titleFallback(htmlContent)
	}
	return title, text, nil
}

func titleFallback(htmlContent string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title, nil
	}
	if title := strings.TrimSpace(doc.Find("h1").First().Text()); title != "" {
		return title, nil
	}
	if title, exists := doc.Find("meta[property='og:title']").Attr("content"); exists && strings.TrimSpace(title) != "" {
		return strings.TrimSpace(title), nil
	}
	if title, exists := doc.Find("meta[name='title']").Attr("content"); exists && strings.TrimSpace(title) != "" {
		return strings.TrimSpace(title), nil
	}

	return "", fmt.Errorf("title not found in HTML")
}
