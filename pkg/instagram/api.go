package instagram

import (
	"encoding/json"
	"fmt"
)

// apiResponse is the JSON returned by the ?__a=1 post endpoint.
type apiResponse struct {
	Items []apiItem `json:"items"`
}

type apiItem struct {
	MediaType      int           `json:"media_type"`
	ImageVersions2 imageVersions `json:"image_versions2"`
	VideoVersions  []candidate   `json:"video_versions"`
	CarouselMedia  []apiItem     `json:"carousel_media"`
}

type imageVersions struct {
	Candidates []candidate `json:"candidates"`
}

type candidate struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ParseAPIResponse decodes a post API payload into media URLs, one per
// carousel item or a single URL for a plain post.
func ParseAPIResponse(data []byte) ([]string, error) {
	var resp apiResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode api response: %w", err)
	}
	if len(resp.Items) == 0 {
		return nil, nil
	}
	return resp.Items[0].mediaURLs(), nil
}

func (it apiItem) mediaURLs() []string {
	if len(it.CarouselMedia) > 0 {
		var urls []string
		for _, child := range it.CarouselMedia {
			if u := child.bestURL(); u != "" {
				urls = append(urls, u)
			}
		}
		return urls
	}
	if u := it.bestURL(); u != "" {
		return []string{u}
	}
	return nil
}

// bestURL prefers a video rendition when there is one, otherwise the largest image.
func (it apiItem) bestURL() string {
	if u := bestCandidate(it.VideoVersions); u != "" {
		return u
	}
	return bestCandidate(it.ImageVersions2.Candidates)
}

// bestCandidate returns the URL with the largest pixel area; earlier entries win ties.
func bestCandidate(cands []candidate) string {
	best := -1
	bestArea := -1
	for i, c := range cands {
		if c.URL == "" {
			continue
		}
		if area := c.Width * c.Height; area > bestArea {
			best, bestArea = i, area
		}
	}
	if best < 0 {
		return ""
	}
	return cands[best].URL
}
