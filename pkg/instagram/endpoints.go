package instagram

import (
	"fmt"
	"net/url"
)

const (
	// BaseURL is the base URL for Instagram's web API
	BaseURL = "https://www.instagram.com"

	// ProfileEndpoint returns profile metadata plus the first page of posts
	ProfileEndpoint = "/api/v1/users/web_profile_info/"

	// MediaEndpoint is the GraphQL endpoint used for post pagination
	MediaEndpoint = "/graphql/query/"

	// StoriesEndpoint returns the active story reel for a set of user IDs.
	// Requires session cookies.
	StoriesEndpoint = "/api/v1/feed/reels_media/"

	// MediaQueryHash is the query hash for the timeline media query
	MediaQueryHash = "e769aa130647d2354c40ea6a439bfc08"

	// DefaultMediaLimit is the page size for post pagination
	DefaultMediaLimit = 12

	// MaxMediaLimit is the largest page size Instagram accepts
	MaxMediaLimit = 50
)

// ProfileURL constructs the URL for fetching a user's profile
func ProfileURL(username string) string {
	params := url.Values{}
	params.Set("username", username)

	return fmt.Sprintf("%s%s?%s", BaseURL, ProfileEndpoint, params.Encode())
}

// MediaURL constructs the URL for one page of a user's posts
func MediaURL(userID, after string, limit int) string {
	if limit <= 0 {
		limit = DefaultMediaLimit
	} else if limit > MaxMediaLimit {
		limit = MaxMediaLimit
	}

	params := url.Values{}
	params.Set("query_hash", MediaQueryHash)
	params.Set("variables", fmt.Sprintf(`{"id":"%s","first":%d,"after":"%s"}`, userID, limit, after))

	return fmt.Sprintf("%s%s?%s", BaseURL, MediaEndpoint, params.Encode())
}

// StoriesURL constructs the URL for a user's active story reel
func StoriesURL(userID string) string {
	params := url.Values{}
	params.Set("reel_ids", userID)

	return fmt.Sprintf("%s%s?%s", BaseURL, StoriesEndpoint, params.Encode())
}

// PostURL constructs the public URL for a post
func PostURL(shortcode string) string {
	if shortcode == "" {
		return ""
	}
	return fmt.Sprintf("%s/p/%s/", BaseURL, shortcode)
}

// StoryURL constructs the public URL for a story item
func StoryURL(username, mediaID string) string {
	if username == "" || mediaID == "" {
		return ""
	}
	return fmt.Sprintf("%s/stories/%s/%s/", BaseURL, username, mediaID)
}

// IsValidUsername checks a username against Instagram's character rules
func IsValidUsername(username string) bool {
	if username == "" || len(username) > 30 {
		return false
	}

	for _, char := range username {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '.' || char == '_') {
			return false
		}
	}

	return true
}

// SanitizeUsername strips a leading @ and trailing slashes or spaces
func SanitizeUsername(username string) string {
	if username == "" {
		return ""
	}

	if username[0] == '@' {
		username = username[1:]
	}

	for len(username) > 0 && (username[len(username)-1] == '/' || username[len(username)-1] == ' ') {
		username = username[:len(username)-1]
	}

	return username
}
