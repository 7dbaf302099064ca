package instagram

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"igmonitor/pkg/logger"
	"igmonitor/pkg/models"
	"igmonitor/pkg/storage"
)

// Fetcher retrieves an account's recent posts and stories and downloads
// their media into the temp directory. It looks at the most recent window of
// posts only; anything older is outside monitoring scope.
type Fetcher struct {
	client        *Client
	store         *storage.Manager
	postsWindow   int
	storyDelayMin time.Duration
	storyDelayMax time.Duration
	logger        logger.Logger
}

// FetcherOptions tunes the fetch behavior
type FetcherOptions struct {
	// PostsWindow is how many recent posts to consider per account.
	// Zero means one API page.
	PostsWindow int
	// StoryDelayMin/Max bound the randomized pause before the story
	// request, which hits an authenticated endpoint
	StoryDelayMin time.Duration
	StoryDelayMax time.Duration
}

// NewFetcher creates a content fetcher backed by client, downloading media
// through store
func NewFetcher(client *Client, store *storage.Manager, opts FetcherOptions, log logger.Logger) *Fetcher {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.PostsWindow <= 0 {
		opts.PostsWindow = DefaultMediaLimit
	}
	return &Fetcher{
		client:        client,
		store:         store,
		postsWindow:   opts.PostsWindow,
		storyDelayMin: opts.StoryDelayMin,
		storyDelayMax: opts.StoryDelayMax,
		logger:        log,
	}
}

// Fetch returns the account's profile and its recent content, newest first.
// maxItems, when positive, narrows the post window for this call. Items
// whose media cannot be downloaded are dropped; they come back on the next
// run if still within the window.
func (f *Fetcher) Fetch(ctx context.Context, account models.Account, maxItems int) (*models.FetchResult, error) {
	log := f.logger.WithField("username", account.Username)

	window := f.postsWindow
	if maxItems > 0 && maxItems < window {
		window = maxItems
	}

	profileResp, err := f.client.FetchUserProfile(ctx, account.Username)
	if err != nil {
		return nil, err
	}
	user := profileResp.Data.User

	result := &models.FetchResult{
		Profile: models.Profile{
			Username:  account.Username,
			FullName:  user.FullName,
			Bio:       user.Biography,
			Followers: user.EdgeFollowedBy.Count,
			Following: user.EdgeFollow.Count,
			PostCount: user.EdgeOwnerToTimelineMedia.Count,
		},
	}

	posts, err := f.fetchPosts(ctx, account.Username, user, window)
	if err != nil {
		return nil, err
	}
	result.Items = append(result.Items, posts...)

	if account.IncludeStories {
		stories, err := f.fetchStories(ctx, account.Username, user.ID)
		if err != nil {
			// Stories are additive: a story failure never loses the posts
			log.WithError(err).Warn("story fetch failed, continuing with posts only")
		} else {
			result.Items = append(result.Items, stories...)
		}
	}

	log.InfoWithFields("account content fetched", map[string]interface{}{
		"posts":   len(posts),
		"items":   len(result.Items),
		"stories": len(result.Items) - len(posts),
	})

	return result, nil
}

// fetchPosts walks the timeline pages until window posts are collected or
// the timeline ends. The first page rides along with the profile response.
func (f *Fetcher) fetchPosts(ctx context.Context, username string, user User, window int) ([]models.ContentItem, error) {
	var items []models.ContentItem

	timeline := user.EdgeOwnerToTimelineMedia
	for {
		for _, edge := range timeline.Edges {
			if len(items) >= window {
				return items, nil
			}
			item, err := f.buildPostItem(ctx, username, edge.Node)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				f.logger.WithError(err).WithFields(map[string]interface{}{
					"username":  username,
					"shortcode": edge.Node.Shortcode,
				}).Warn("media download failed, skipping item")
				continue
			}
			items = append(items, item)
		}

		if len(items) >= window || !timeline.PageInfo.HasNextPage {
			return items, nil
		}

		resp, err := f.client.FetchUserMedia(ctx, user.ID, timeline.PageInfo.EndCursor, window-len(items))
		if err != nil {
			return nil, err
		}
		timeline = resp.Data.User.EdgeOwnerToTimelineMedia
		if len(timeline.Edges) == 0 {
			return items, nil
		}
	}
}

func (f *Fetcher) buildPostItem(ctx context.Context, username string, node Node) (models.ContentItem, error) {
	item := models.ContentItem{
		ID:        node.Shortcode,
		Kind:      models.KindPost,
		Username:  username,
		URL:       PostURL(node.Shortcode),
		Caption:   node.Caption(),
		Timestamp: time.Unix(node.TakenAtTimestamp, 0).UTC(),
		Likes:     node.EdgeMediaPreviewLike.Count,
		IsVideo:   node.IsVideo,
		MediaURL:  node.DisplayURL,
	}
	if node.IsVideo && node.VideoURL != "" {
		item.MediaURL = node.VideoURL
	}

	path, err := f.downloadMedia(ctx, username, item.ID, item.MediaURL, item.IsVideo)
	if err != nil {
		return models.ContentItem{}, err
	}
	item.MediaPath = path

	return item, nil
}

// fetchStories pulls the account's active story reel. The reel endpoint
// needs session cookies; without them stories are silently unavailable and
// the caller sees an auth error.
func (f *Fetcher) fetchStories(ctx context.Context, username, userID string) ([]models.ContentItem, error) {
	if err := f.storyDelay(ctx); err != nil {
		return nil, err
	}

	raw, err := f.client.FetchStories(ctx, userID)
	if err != nil {
		return nil, err
	}

	var items []models.ContentItem
	for _, story := range raw {
		mediaID := story.ID
		if mediaID == "" && story.PK != 0 {
			mediaID = strconv.FormatInt(story.PK, 10)
		}
		if mediaID == "" || story.MediaURL() == "" {
			continue
		}

		item := models.ContentItem{
			ID:        mediaID,
			Kind:      models.KindStory,
			Username:  username,
			URL:       StoryURL(username, mediaID),
			Timestamp: time.Unix(story.TakenAt, 0).UTC(),
			IsVideo:   story.IsVideo(),
			MediaURL:  story.MediaURL(),
		}

		path, err := f.downloadMedia(ctx, username, "story_"+mediaID, item.MediaURL, item.IsVideo)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			f.logger.WithError(err).WithFields(map[string]interface{}{
				"username": username,
				"story":    mediaID,
			}).Warn("story media download failed, skipping item")
			continue
		}
		item.MediaPath = path

		items = append(items, item)
	}

	return items, nil
}

func (f *Fetcher) downloadMedia(ctx context.Context, username, id, mediaURL string, isVideo bool) (string, error) {
	body, err := f.client.Download(ctx, mediaURL)
	if err != nil {
		return "", err
	}
	defer body.Close()

	ext := ".jpg"
	if isVideo {
		ext = ".mp4"
	}

	return f.store.SaveMedia(body, username, fmt.Sprintf("%s%s", id, ext))
}

// storyDelay pauses a randomized interval before the authenticated story
// request
func (f *Fetcher) storyDelay(ctx context.Context) error {
	if f.storyDelayMax <= 0 {
		return nil
	}
	delay := f.storyDelayMin
	if f.storyDelayMax > f.storyDelayMin {
		delay = f.storyDelayMin + time.Duration(rand.Int63n(int64(f.storyDelayMax-f.storyDelayMin)))
	}

	timer := time.NewTimer(delay)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
