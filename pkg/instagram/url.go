package instagram

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/iconidentify/igrabba/internal/domain"
)

// CanonicalHost is the host every classified URL is normalized to.
const CanonicalHost = "www.instagram.com"

// kindRule pairs a URL shape with the content kind it implies.
type kindRule struct {
	kind    domain.ContentKind
	pattern *regexp.Regexp
}

// Checked in order; the first match wins.
var kindRules = []kindRule{
	{domain.ContentKindPost, regexp.MustCompile(`(?i)instagram\.com/(?:[A-Za-z0-9._]+/)?p/[A-Za-z0-9_-]+`)},
	{domain.ContentKindVideo, regexp.MustCompile(`(?i)instagram\.com/(?:[A-Za-z0-9._]+/)?(?:reels?|tv)/[A-Za-z0-9_-]+`)},
	{domain.ContentKindStory, regexp.MustCompile(`(?i)instagram\.com/stories/[^/]+/\d+`)},
	{domain.ContentKindProfile, regexp.MustCompile(`(?i)instagram\.com/[^/?#\s]+`)},
}

// Identifier patterns are kept apart from kind rules: a URL can have a known
// shape and still carry no usable identifier. Both sets ignore case.
var (
	postIDPattern  = regexp.MustCompile(`(?i)instagram\.com/(?:[A-Za-z0-9._]+/)?p/([A-Za-z0-9_-]+)`)
	reelIDPattern  = regexp.MustCompile(`(?i)instagram\.com/(?:[A-Za-z0-9._]+/)?(?:reels?|tv)/([A-Za-z0-9_-]+)`)
	storyIDPattern = regexp.MustCompile(`(?i)instagram\.com/stories/[^/]+/(\d+)`)
	usernameRegex  = regexp.MustCompile(`instagram\.com/([A-Za-z0-9._]{1,30})/$`)

	urlInText = regexp.MustCompile(`(?i)(?:https?://)?(?:www\.|m\.)?instagram\.com/[^\s<>"']*`)
)

// Path segments that are site sections, never usernames.
var reservedSegments = map[string]bool{
	"p": true, "reel": true, "reels": true, "tv": true, "stories": true,
	"explore": true, "accounts": true, "direct": true, "about": true,
	"developer": true, "legal": true, "web": true, "static": true,
}

// Classify normalizes rawURL and tags its kind and identifier.
// An empty ContentID means the URL cannot be processed.
func Classify(rawURL string) domain.ContentRequest {
	req := domain.ContentRequest{
		RawURL: rawURL,
		Kind:   domain.ContentKindProfile,
	}

	normalized, ok := Normalize(rawURL)
	if !ok {
		return req
	}
	req.NormalizedURL = normalized

	matched := false
	for _, rule := range kindRules {
		if rule.pattern.MatchString(normalized) {
			req.Kind = rule.kind
			matched = true
			break
		}
	}
	if !matched {
		return req
	}

	req.ContentID = ExtractContentID(normalized, req.Kind)
	return req
}

// ExtractContentID pulls the identifier matching kind out of a normalized URL.
func ExtractContentID(normalizedURL string, kind domain.ContentKind) string {
	var pattern *regexp.Regexp
	switch kind {
	case domain.ContentKindPost:
		pattern = postIDPattern
	case domain.ContentKindVideo:
		pattern = reelIDPattern
	case domain.ContentKindStory:
		pattern = storyIDPattern
	default:
		m := usernameRegex.FindStringSubmatch(normalizedURL)
		if len(m) < 2 || reservedSegments[strings.ToLower(m[1])] {
			return ""
		}
		return m[1]
	}

	m := pattern.FindStringSubmatch(normalizedURL)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// Normalize canonicalizes an instagram URL: https scheme, www host, no query or
// fragment, trailing slash. It reports false for anything that is not instagram.
func Normalize(rawURL string) (string, bool) {
	s := strings.TrimSpace(rawURL)
	if s == "" {
		return "", false
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", false
	}

	host := strings.ToLower(u.Hostname())
	switch host {
	case "instagram.com", "www.instagram.com", "m.instagram.com":
	default:
		return "", false
	}

	path := u.EscapedPath()
	if path == "" || path == "/" {
		return "", false
	}
	path = strings.TrimRight(path, "/") + "/"

	return "https://" + CanonicalHost + path, true
}

// FindURL returns the first instagram URL contained in free text.
func FindURL(text string) (string, bool) {
	m := urlInText.FindString(text)
	if m == "" {
		return "", false
	}
	if _, ok := Normalize(m); !ok {
		return "", false
	}
	return m, true
}

// PostURL builds the canonical post page URL for a shortcode.
func PostURL(shortcode string) string {
	return "https://" + CanonicalHost + "/p/" + shortcode + "/"
}
