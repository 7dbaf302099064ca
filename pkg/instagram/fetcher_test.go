package instagram

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igmonitor/pkg/logger"
	"igmonitor/pkg/models"
	"igmonitor/pkg/storage"
)

func profileBody(t *testing.T, userID string, nodes ...Node) string {
	t.Helper()
	var resp ProfileResponse
	resp.Status = "ok"
	resp.Data.User.ID = userID
	resp.Data.User.FullName = "Alice Example"
	resp.Data.User.EdgeFollowedBy.Count = 1000
	resp.Data.User.EdgeOwnerToTimelineMedia.Count = len(nodes)
	for _, n := range nodes {
		resp.Data.User.EdgeOwnerToTimelineMedia.Edges = append(
			resp.Data.User.EdgeOwnerToTimelineMedia.Edges, Edge{Node: n})
	}
	body, err := json.Marshal(resp)
	require.NoError(t, err)
	return string(body)
}

func postNode(shortcode string) Node {
	return Node{
		ID:               "id_" + shortcode,
		Shortcode:        shortcode,
		DisplayURL:       "https://cdn.example/" + shortcode + ".jpg",
		TakenAtTimestamp: 1700000000,
		EdgeMediaToCaption: CaptionEdges{Edges: []CaptionEdge{
			{Node: CaptionNode{Text: "caption " + shortcode}},
		}},
	}
}

func newTestFetcher(t *testing.T, handler func(req *http.Request) (*http.Response, error)) *Fetcher {
	t.Helper()
	client := newTestClient(t, handler)
	store, err := storage.NewManager(t.TempDir())
	require.NoError(t, err)
	return NewFetcher(client, store, FetcherOptions{}, logger.Nop())
}

func TestFetchMapsPostsToItems(t *testing.T) {
	body := profileBody(t, "12345", postNode("p3"), postNode("p2"), postNode("p1"))

	fetcher := newTestFetcher(t, func(req *http.Request) (*http.Response, error) {
		if strings.Contains(req.URL.Path, ProfileEndpoint) {
			return newResponse(http.StatusOK, body), nil
		}
		// media downloads
		return newResponse(http.StatusOK, "jpegbytes"), nil
	})

	result, err := fetcher.Fetch(context.Background(), models.Account{Username: "alice"}, 0)
	require.NoError(t, err)

	assert.Equal(t, "alice", result.Profile.Username)
	assert.Equal(t, "Alice Example", result.Profile.FullName)
	assert.Equal(t, 1000, result.Profile.Followers)

	require.Len(t, result.Items, 3)
	first := result.Items[0]
	assert.Equal(t, "p3", first.ID)
	assert.Equal(t, models.KindPost, first.Kind)
	assert.Equal(t, "caption p3", first.Caption)
	assert.Equal(t, PostURL("p3"), first.URL)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), first.Timestamp)

	// media landed on disk
	require.NotEmpty(t, first.MediaPath)
	data, err := os.ReadFile(first.MediaPath)
	require.NoError(t, err)
	assert.Equal(t, "jpegbytes", string(data))
}

func TestFetchWindowCapsPosts(t *testing.T) {
	body := profileBody(t, "12345", postNode("p4"), postNode("p3"), postNode("p2"), postNode("p1"))

	fetcher := newTestFetcher(t, func(req *http.Request) (*http.Response, error) {
		if strings.Contains(req.URL.Path, ProfileEndpoint) {
			return newResponse(http.StatusOK, body), nil
		}
		return newResponse(http.StatusOK, "x"), nil
	})

	result, err := fetcher.Fetch(context.Background(), models.Account{Username: "alice"}, 2)
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "p4", result.Items[0].ID)
	assert.Equal(t, "p3", result.Items[1].ID)
}

func TestFetchSkipsItemsWhoseMediaFails(t *testing.T) {
	body := profileBody(t, "12345", postNode("good"), postNode("bad"), postNode("also_good"))

	fetcher := newTestFetcher(t, func(req *http.Request) (*http.Response, error) {
		if strings.Contains(req.URL.Path, ProfileEndpoint) {
			return newResponse(http.StatusOK, body), nil
		}
		if strings.Contains(req.URL.Path, "bad.jpg") {
			return newResponse(http.StatusNotFound, ""), nil
		}
		return newResponse(http.StatusOK, "x"), nil
	})

	result, err := fetcher.Fetch(context.Background(), models.Account{Username: "alice"}, 0)
	require.NoError(t, err)

	var ids []string
	for _, item := range result.Items {
		ids = append(ids, item.ID)
	}
	assert.Equal(t, []string{"good", "also_good"}, ids)
}

func TestFetchIncludesStoriesWithSession(t *testing.T) {
	body := profileBody(t, "12345", postNode("p1"))
	storiesBody := `{
		"reels_media": [{"items": [
			{"id": "999_12345", "taken_at": 1700000200, "media_type": 1,
			 "image_versions2": {"candidates": [{"url": "https://cdn.example/story.jpg"}]}}
		]}],
		"status": "ok"
	}`

	cfg := testConfig()
	cfg.SessionID = "sess-123"
	client := NewClient(cfg, logger.Nop())
	client.httpClient = &http.Client{
		Transport: &mockRoundTripper{handler: func(req *http.Request) (*http.Response, error) {
			switch {
			case strings.Contains(req.URL.Path, ProfileEndpoint):
				return newResponse(http.StatusOK, body), nil
			case strings.Contains(req.URL.Path, StoriesEndpoint):
				return newResponse(http.StatusOK, storiesBody), nil
			default:
				return newResponse(http.StatusOK, "x"), nil
			}
		}},
	}

	store, err := storage.NewManager(t.TempDir())
	require.NoError(t, err)
	fetcher := NewFetcher(client, store, FetcherOptions{}, logger.Nop())

	result, err := fetcher.Fetch(context.Background(), models.Account{Username: "alice", IncludeStories: true}, 0)
	require.NoError(t, err)

	require.Len(t, result.Items, 2)
	story := result.Items[1]
	assert.Equal(t, models.KindStory, story.Kind)
	assert.Equal(t, "999_12345", story.ID)
	assert.Equal(t, StoryURL("alice", "999_12345"), story.URL)
	assert.NotEmpty(t, story.MediaPath)
}

func TestFetchStoryFailureKeepsPosts(t *testing.T) {
	body := profileBody(t, "12345", postNode("p1"))

	// No session configured: the story request fails with an auth error,
	// but the posts still come back
	fetcher := newTestFetcher(t, func(req *http.Request) (*http.Response, error) {
		if strings.Contains(req.URL.Path, ProfileEndpoint) {
			return newResponse(http.StatusOK, body), nil
		}
		return newResponse(http.StatusOK, "x"), nil
	})

	result, err := fetcher.Fetch(context.Background(), models.Account{Username: "alice", IncludeStories: true}, 0)
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, models.KindPost, result.Items[0].Kind)
}
