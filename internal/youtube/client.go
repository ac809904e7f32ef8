package youtube

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// MaxBatchSize is the videos.list per-call id limit.
const MaxBatchSize = 50

// Parts requested on every videos.list call.
var requestedParts = []string{
	"snippet",
	"contentDetails",
	"statistics",
	"topicDetails",
}

// Client wraps the YouTube Data API v3 client. The API key is supplied per
// call so a single client serves every key in a rotation.
type Client struct {
	service *youtube.Service
}

// Config holds the settings for NewClient.
type Config struct {
	Endpoint string        // Optional base URL override, e.g. for tests
	Timeout  time.Duration // Per-call timeout (default: 30 seconds)
}

// NewClient creates a new YouTube API client
func NewClient(ctx context.Context, config Config) (*Client, error) {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	opts := []option.ClientOption{
		option.WithHTTPClient(&http.Client{Timeout: config.Timeout}),
	}
	if config.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(strings.TrimSuffix(config.Endpoint, "/")+"/"))
	}

	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}

	return &Client{service: service}, nil
}

// ListVideos retrieves up to 50 videos in a single call authenticated with apiKey.
func (c *Client) ListVideos(ctx context.Context, apiKey string, videoIDs []string) ([]*youtube.Video, error) {
	if len(videoIDs) == 0 {
		return nil, fmt.Errorf("no video IDs provided")
	}

	if len(videoIDs) > MaxBatchSize {
		return nil, fmt.Errorf("too many video IDs (max %d, got %d)", MaxBatchSize, len(videoIDs))
	}

	call := c.service.Videos.List(requestedParts).
		Id(videoIDs...).
		Context(ctx)

	response, err := call.Do(googleapi.QueryParameter("key", apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch videos from YouTube API: %w", err)
	}

	return response.Items, nil
}

// IsQuotaError reports whether err is a quota or rate-limit rejection
// (HTTP 403 or 429). Any other failure is treated as transient transport.
func IsQuotaError(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == http.StatusForbidden || apiErr.Code == http.StatusTooManyRequests
}

// BatchVideoIDs splits a large list of video IDs into batches of 50
func BatchVideoIDs(videoIDs []string, batchSize int) [][]string {
	if batchSize <= 0 || batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}

	var batches [][]string
	for i := 0; i < len(videoIDs); i += batchSize {
		end := i + batchSize
		if end > len(videoIDs) {
			end = len(videoIDs)
		}
		batches = append(batches, videoIDs[i:end])
	}

	return batches
}

var durationPattern = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// ParseDuration converts an ISO 8601 duration to seconds.
// Example: "PT4M13S" -> 253 seconds
//
// It returns nil for an empty string, a duration with a day component, or
// anything else outside PT[nH][nM][nS].
func ParseDuration(duration string) *int {
	if duration == "" || strings.Contains(duration, "D") {
		return nil
	}

	m := durationPattern.FindStringSubmatch(duration)
	if m == nil {
		return nil
	}

	total := 0
	for i, unit := range []int{3600, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil || n > (math.MaxInt-total)/unit {
			return nil
		}
		total += n * unit
	}
	return &total
}
