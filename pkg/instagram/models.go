package instagram

// ProfileResponse is the top-level response from the web profile endpoint.
// The same shape comes back from the GraphQL media query.
type ProfileResponse struct {
	RequiresToLogin bool   `json:"requires_to_login"`
	Data            Data   `json:"data"`
	Status          string `json:"status"`
}

// Data wraps the user information in the response
type Data struct {
	User User `json:"user"`
}

// User represents an Instagram user profile
type User struct {
	ID                       string                   `json:"id"`
	Username                 string                   `json:"username"`
	FullName                 string                   `json:"full_name"`
	Biography                string                   `json:"biography"`
	IsPrivate                bool                     `json:"is_private"`
	EdgeFollowedBy           EdgeCount                `json:"edge_followed_by"`
	EdgeFollow               EdgeCount                `json:"edge_follow"`
	EdgeOwnerToTimelineMedia EdgeOwnerToTimelineMedia `json:"edge_owner_to_timeline_media"`
}

// EdgeCount holds a bare count edge
type EdgeCount struct {
	Count int `json:"count"`
}

// EdgeOwnerToTimelineMedia contains the user's post timeline
type EdgeOwnerToTimelineMedia struct {
	Count    int      `json:"count"`
	PageInfo PageInfo `json:"page_info"`
	Edges    []Edge   `json:"edges"`
}

// PageInfo contains pagination information
type PageInfo struct {
	HasNextPage bool   `json:"has_next_page"`
	EndCursor   string `json:"end_cursor"`
}

// Edge wraps a single media node
type Edge struct {
	Node Node `json:"node"`
}

// Node represents a single post (photo or video)
type Node struct {
	ID                   string       `json:"id"`
	Shortcode            string       `json:"shortcode"`
	DisplayURL           string       `json:"display_url"`
	VideoURL             string       `json:"video_url"`
	IsVideo              bool         `json:"is_video"`
	TakenAtTimestamp     int64        `json:"taken_at_timestamp"`
	EdgeMediaToCaption   CaptionEdges `json:"edge_media_to_caption"`
	EdgeMediaPreviewLike EdgeCount    `json:"edge_media_preview_like"`
}

// CaptionEdges wraps post caption text
type CaptionEdges struct {
	Edges []CaptionEdge `json:"edges"`
}

// CaptionEdge holds one caption node
type CaptionEdge struct {
	Node CaptionNode `json:"node"`
}

// CaptionNode is the caption text itself
type CaptionNode struct {
	Text string `json:"text"`
}

// Caption returns the first caption text of the post, or ""
func (n *Node) Caption() string {
	if len(n.EdgeMediaToCaption.Edges) == 0 {
		return ""
	}
	return n.EdgeMediaToCaption.Edges[0].Node.Text
}

// StoriesResponse is the response from the reels media endpoint
type StoriesResponse struct {
	ReelsMedia []Reel `json:"reels_media"`
	Status     string `json:"status"`
}

// Reel is one user's active story tray
type Reel struct {
	ID    int64       `json:"id"`
	Items []StoryItem `json:"items"`
}

// StoryItem is a single story frame. MediaType 1 is photo, 2 is video.
type StoryItem struct {
	ID            string         `json:"id"`
	PK            int64          `json:"pk"`
	TakenAt       int64          `json:"taken_at"`
	MediaType     int            `json:"media_type"`
	ImageVersions ImageVersions2 `json:"image_versions2"`
	VideoVersions []VideoVersion `json:"video_versions"`
}

// ImageVersions2 lists image renditions, largest first
type ImageVersions2 struct {
	Candidates []ImageCandidate `json:"candidates"`
}

// ImageCandidate is one image rendition
type ImageCandidate struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// VideoVersion is one video rendition
type VideoVersion struct {
	URL string `json:"url"`
}

// IsVideo reports whether the story frame is a video
func (s *StoryItem) IsVideo() bool {
	return s.MediaType == 2
}

// MediaURL returns the best media URL for the story frame
func (s *StoryItem) MediaURL() string {
	if s.IsVideo() && len(s.VideoVersions) > 0 {
		return s.VideoVersions[0].URL
	}
	if len(s.ImageVersions.Candidates) > 0 {
		return s.ImageVersions.Candidates[0].URL
	}
	return ""
}
