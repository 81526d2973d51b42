package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// maxPageBytes caps how much of an article page is read during enrichment.
const maxPageBytes = 2 << 20

// enrichment is the result of a best-effort secondary fetch of an article
// page: extracted body text and a representative image.
type enrichment struct {
	Content  string
	ImageURL string
}

// enrichArticle fetches the article page and extracts its main text and lead
// image. Failures are returned to the caller, which degrades to the feed
// snippet instead of dropping the item.
func (e *Engine) enrichArticle(ctx context.Context, pageURL string) (*enrichment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create enrichment request: %w", err)
	}
	applyRequestProfile(req, primaryProfile)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch article page: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("article page returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse article page: %w", err)
	}

	return &enrichment{
		Content:  extractMainText(doc),
		ImageURL: extractLeadImage(doc),
	}, nil
}

// extractMainText pulls readable article text from a page, preferring
// common main-content containers over the whole body.
func extractMainText(doc *goquery.Document) string {
	doc.Find("script, style, nav, footer, header, aside, form, iframe, noscript").Remove()

	var text string
	mainContentSelectors := []string{"article", "main", ".main", "#main", ".content", "#content", ".post-body", ".entry-content"}
	for _, selector := range mainContentSelectors {
		doc.Find(selector).Each(func(i int, s *goquery.Selection) {
			text += s.Text() + " "
		})
		if strings.TrimSpace(text) != "" {
			break
		}
	}
	if strings.TrimSpace(text) == "" {
		text = doc.Find("body").Text()
	}

	return strings.Join(strings.Fields(text), " ")
}

// extractLeadImage returns the page's representative image, if declared.
func extractLeadImage(doc *goquery.Document) string {
	selectors := []string{
		`meta[property="og:image"]`,
		`meta[name="twitter:image"]`,
	}
	for _, selector := range selectors {
		if url, ok := doc.Find(selector).First().Attr("content"); ok && strings.HasPrefix(url, "http") {
			return url
		}
	}
	if url, ok := doc.Find("article img, main img").First().Attr("src"); ok && strings.HasPrefix(url, "http") {
		return url
	}
	return ""
}

// preferEnriched reports whether enriched page content should replace the
// feed snippet. The page wins only when it is materially longer; boilerplate
// scraps shorter than the snippet never do.
func preferEnriched(snippet, enriched string) bool {
	if enriched == "" {
		return false
	}
	return len(enriched) > 2*len(snippet) || (len(snippet) < 200 && len(enriched) > len(snippet))
}
