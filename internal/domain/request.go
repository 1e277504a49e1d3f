package domain

// ContentKind is the coarse content category inferred from URL shape.
type ContentKind string

const (
	ContentKindPost    ContentKind = "post"
	ContentKindVideo   ContentKind = "video"
	ContentKindStory   ContentKind = "story"
	ContentKindProfile ContentKind = "profile"
)

// String returns the string representation of the ContentKind.
func (k ContentKind) String() string {
	return string(k)
}

// Label returns a human-facing label for messages ("Post", "Video", ...).
func (k ContentKind) Label() string {
	switch k {
	case ContentKindPost:
		return "Post"
	case ContentKindVideo:
		return "Video"
	case ContentKindStory:
		return "Story"
	default:
		return "Content"
	}
}

// ContentRequest is one classified inbound URL. It is immutable after classification.
type ContentRequest struct {
	RawURL        string
	NormalizedURL string
	// ContentID is empty when no identifier could be extracted.
	ContentID string
	Kind      ContentKind
}

// Classified reports whether an identifier was extracted.
func (r ContentRequest) Classified() bool {
	return r.ContentID != ""
}
