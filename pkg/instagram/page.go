package instagram

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	sharedDataPrefix     = "window._sharedData = "
	additionalDataPrefix = "window.__additionalDataLoaded("
)

// shortcodeMedia is the subset of the embedded post object we read.
type shortcodeMedia struct {
	Typename   string `json:"__typename"`
	DisplayURL string `json:"display_url"`
	VideoURL   string `json:"video_url"`
	IsVideo    bool   `json:"is_video"`
	Sidecar    *struct {
		Edges []struct {
			Node shortcodeMedia `json:"node"`
		} `json:"edges"`
	} `json:"edge_sidecar_to_children"`
}

func (m shortcodeMedia) mediaURL() string {
	if m.IsVideo && m.VideoURL != "" {
		return m.VideoURL
	}
	return m.DisplayURL
}

type graphqlEnvelope struct {
	Graphql struct {
		ShortcodeMedia *shortcodeMedia `json:"shortcode_media"`
	} `json:"graphql"`
	// __additionalDataLoaded payloads sometimes carry the API shape instead.
	Items []apiItem `json:"items"`
}

type sharedData struct {
	EntryData struct {
		PostPage []graphqlEnvelope `json:"PostPage"`
	} `json:"entry_data"`
}

// ExtractEmbeddedMedia finds the structured data block embedded in a post page
// and returns the media URLs it describes, carousel order preserved.
// It returns an error when no block is present or the block does not parse.
func ExtractEmbeddedMedia(html []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var (
		urls     []string
		found    bool
		parseErr error
	)
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())

		var env *graphqlEnvelope
		switch {
		case strings.HasPrefix(text, sharedDataPrefix):
			found = true
			payload := strings.TrimSuffix(strings.TrimPrefix(text, sharedDataPrefix), ";")
			var sd sharedData
			if err := json.Unmarshal([]byte(payload), &sd); err != nil {
				parseErr = fmt.Errorf("decode shared data: %w", err)
				return true
			}
			if len(sd.EntryData.PostPage) == 0 {
				return true
			}
			env = &sd.EntryData.PostPage[0]
		case strings.HasPrefix(text, additionalDataPrefix):
			found = true
			payload, ok := additionalDataPayload(text)
			if !ok {
				return true
			}
			env = &graphqlEnvelope{}
			if err := json.Unmarshal([]byte(payload), env); err != nil {
				parseErr = fmt.Errorf("decode additional data: %w", err)
				return true
			}
		default:
			return true
		}

		urls = env.mediaURLs()
		return len(urls) == 0
	})

	if len(urls) > 0 {
		return urls, nil
	}
	if parseErr != nil {
		return nil, parseErr
	}
	if !found {
		return nil, fmt.Errorf("no embedded data block")
	}
	return nil, nil
}

func (e *graphqlEnvelope) mediaURLs() []string {
	if media := e.Graphql.ShortcodeMedia; media != nil {
		if media.Sidecar != nil && len(media.Sidecar.Edges) > 0 {
			var urls []string
			for _, edge := range media.Sidecar.Edges {
				if u := edge.Node.mediaURL(); u != "" {
					urls = append(urls, u)
				}
			}
			return urls
		}
		if u := media.mediaURL(); u != "" {
			return []string{u}
		}
		return nil
	}
	if len(e.Items) > 0 {
		return e.Items[0].mediaURLs()
	}
	return nil
}

// additionalDataPayload extracts the JSON object from
// window.__additionalDataLoaded('/p/CODE/',{...});
func additionalDataPayload(script string) (string, bool) {
	start := strings.Index(script, "{")
	end := strings.LastIndex(script, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return script[start : end+1], true
}

// Field patterns that carry image URLs in raw page bodies.
var candidatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)"display_url":"([^"]+)"`),
	regexp.MustCompile(`(?i)"src":"([^"]+\.jpg[^"]*)"`),
	regexp.MustCompile(`(?i)"src":"([^"]+\.png[^"]*)"`),
	regexp.MustCompile(`(?i)"src":"([^"]+\.webp[^"]*)"`),
}

var (
	cdnMarkers      = []string{"cdninstagram.com", "fbcdn.net"}
	assetMarkers    = []string{"logo", "icon", "brand"}
	imageExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}
)

// ScrapeMediaURLs scans a raw page body for CDN image URLs. Site assets such as
// logos and icons are dropped; duplicates are removed keeping first-seen order.
func ScrapeMediaURLs(body []byte) []string {
	text := string(body)
	seen := make(map[string]bool)
	var urls []string

	for _, pattern := range candidatePatterns {
		for _, m := range pattern.FindAllStringSubmatch(text, -1) {
			candidate := UnescapeURL(m[1])
			if seen[candidate] || !IsContentURL(candidate) {
				continue
			}
			seen[candidate] = true
			urls = append(urls, candidate)
		}
	}
	return urls
}

// UnescapeURL undoes the JSON-in-HTML escaping (\u0026, \/) found in page bodies.
func UnescapeURL(s string) string {
	s = strings.ReplaceAll(s, `\u0026`, "&")
	s = strings.ReplaceAll(s, `\/`, "/")
	return s
}

// IsContentURL reports whether u looks like a post image on the CDN
// rather than a site asset.
func IsContentURL(u string) bool {
	lower := strings.ToLower(u)
	if !strings.HasPrefix(lower, "http") {
		return false
	}
	if !containsAny(lower, cdnMarkers) {
		return false
	}
	if strings.Contains(lower, "instagram") && !strings.Contains(lower, "cdninstagram") {
		return false
	}
	if containsAny(lower, assetMarkers) {
		return false
	}
	return containsAny(lower, imageExtensions)
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
