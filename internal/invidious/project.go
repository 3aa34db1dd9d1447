// SPDX-License-Identifier: MIT

package invidious

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/marmadilemanteater/yaytapi-go/internal/config"
)

type playerDoc struct {
	VideoDetails struct {
		VideoID          string   `json:"videoId"`
		Title            string   `json:"title"`
		LengthSeconds    string   `json:"lengthSeconds"`
		Keywords         []string `json:"keywords"`
		ChannelID        string   `json:"channelId"`
		ShortDescription string   `json:"shortDescription"`
		Author           string   `json:"author"`
		IsLiveContent    bool     `json:"isLiveContent"`
		ViewCount        string   `json:"viewCount"`
		IsUpcoming       bool     `json:"isUpcoming"`
		Thumbnail        struct {
			Thumbnails []struct {
				URL    string `json:"url"`
				Width  int    `json:"width"`
				Height int    `json:"height"`
			} `json:"thumbnails"`
		} `json:"thumbnail"`
	} `json:"videoDetails"`
	Microformat struct {
		PlayerMicroformatRenderer struct {
			Category          string `json:"category"`
			PublishDate       string `json:"publishDate"`
			UploadDate        string `json:"uploadDate"`
			IsFamilySafe      bool   `json:"isFamilySafe"`
			LiveBroadcastDetails struct {
				IsLiveNow bool `json:"isLiveNow"`
			} `json:"liveBroadcastDetails"`
		} `json:"playerMicroformatRenderer"`
	} `json:"microformat"`
	StreamingData struct {
		Formats         []streamEntry `json:"formats"`
		AdaptiveFormats []streamEntry `json:"adaptiveFormats"`
		HlsManifestURL  string        `json:"hlsManifestUrl"`
	} `json:"streamingData"`
}

type streamEntry struct {
	URL         string `json:"url"`
	Itag        int    `json:"itag"`
	MimeType    string `json:"mimeType"`
	Bitrate     int    `json:"bitrate"`
	Size        string `json:"size"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	FPS         int    `json:"fps"`
	Quality     string `json:"quality"`
	QualityLbl  string `json:"qualityLabel"`
	AudioQual   string `json:"audioQuality"`
	ApproxDurMs string `json:"approxDurationMs"`
}

type nextDoc struct {
	Contents struct {
		TwoColumnWatchNextResults struct {
			SecondaryResults struct {
				SecondaryResults struct {
					Results []json.RawMessage `json:"results"`
				} `json:"secondaryResults"`
			} `json:"secondaryResults"`
			Results struct {
				Results struct {
					Contents []json.RawMessage `json:"contents"`
				} `json:"results"`
			} `json:"results"`
		} `json:"twoColumnWatchNextResults"`
	} `json:"contents"`
}

var sizePattern = regexp.MustCompile(`(\d+)x(\d+)`)

// maxStreamWidth parses each stream's "size" field (pattern "WxH"), taking
// the numeric max; falls back to 680 if none parse. See spec.md §9's note
// that this fallback is arbitrary and acceptable to change if documented.
func maxStreamWidth(formats, adaptive []streamEntry) int {
	const fallback = 680
	max := 0
	scan := func(entries []streamEntry) {
		for _, e := range entries {
			m := sizePattern.FindStringSubmatch(e.Size)
			if m == nil {
				if e.Width > max {
					max = e.Width
				}
				continue
			}
			w, err := strconv.Atoi(m[1])
			if err == nil && w > max {
				max = w
			}
		}
	}
	scan(formats)
	scan(adaptive)
	if max == 0 {
		return fallback
	}
	return max
}

func videoThumbnails(videoID string, maxWidth int) []map[string]any {
	sizes := []struct {
		name          string
		width, height int
	}{
		{"maxres", maxWidth, maxWidth * 9 / 16},
		{"maxresdefault", maxWidth, maxWidth * 9 / 16},
		{"sddefault", 640, 480},
		{"high", 480, 360},
		{"medium", 320, 180},
		{"default", 120, 90},
		{"start", 120, 90},
		{"middle", 120, 90},
		{"end", 120, 90},
	}
	out := make([]map[string]any, 0, len(sizes))
	for _, s := range sizes {
		out = append(out, map[string]any{
			"quality": s.name,
			"url":     fmt.Sprintf("/vi/%s/%s.jpg", videoID, s.name),
			"width":   s.width,
			"height":  s.height,
		})
	}
	return out
}

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

// ProjectVideo implements the algorithm of spec.md §4.6: project player
// (and, lazily, next) into an Invidious-shaped object, drop anything
// outside mask, fill synthesised defaults, strip hlsUrl, and honour the
// retainNullKeys/sortToInvSchema/returnInnertubeResponse settings.
func ProjectVideo(playerRaw, nextRaw json.RawMessage, mask []string, settings config.AppSettings) (json.RawMessage, error) {
	var p playerDoc
	if err := json.Unmarshal(playerRaw, &p); err != nil {
		return nil, fmt.Errorf("invidious: parsing player response: %w", err)
	}

	fields := NewOrderedFields()
	needsNext := false
	maskSet := map[string]bool{}
	for _, m := range mask {
		maskSet[m] = true
	}

	_ = fields.Set("type", "video")
	_ = fields.Set("title", p.VideoDetails.Title)
	_ = fields.Set("videoId", p.VideoDetails.VideoID)
	_ = fields.Set("description", p.VideoDetails.ShortDescription)
	_ = fields.Set("descriptionHtml", strings.ReplaceAll(p.VideoDetails.ShortDescription, "\n", "<br>"))
	_ = fields.Set("published", parseInt64(publishedUnix(p.Microformat.PlayerMicroformatRenderer.PublishDate)))
	_ = fields.Set("publishedText", p.Microformat.PlayerMicroformatRenderer.PublishDate)
	_ = fields.Set("viewCount", parseInt64(p.VideoDetails.ViewCount))
	_ = fields.Set("likeCount", 0)
	_ = fields.Set("paid", false)
	_ = fields.Set("premium", false)
	_ = fields.Set("isFamilyFriendly", p.Microformat.PlayerMicroformatRenderer.IsFamilySafe)
	_ = fields.Set("allowedRegions", []string{})
	_ = fields.Set("genre", p.Microformat.PlayerMicroformatRenderer.Category)
	_ = fields.Set("author", p.VideoDetails.Author)
	_ = fields.Set("authorId", p.VideoDetails.ChannelID)
	_ = fields.Set("authorUrl", "/channel/"+p.VideoDetails.ChannelID)
	_ = fields.Set("authorThumbnails", []any{})
	_ = fields.Set("subCountText", "")
	_ = fields.Set("lengthSeconds", parseInt64(p.VideoDetails.LengthSeconds))
	_ = fields.Set("allowRatings", true)
	_ = fields.Set("isListed", true)
	_ = fields.Set("liveNow", p.Microformat.PlayerMicroformatRenderer.LiveBroadcastDetails.IsLiveNow)
	_ = fields.Set("isUpcoming", p.VideoDetails.IsUpcoming)
	_ = fields.Set("dashUrl", "")
	_ = fields.Set("adaptiveFormats", p.StreamingData.AdaptiveFormats)
	_ = fields.Set("formatStreams", p.StreamingData.Formats)
	_ = fields.Set("storyboards", []any{})

	for _, m := range mask {
		if maskSet[m] && !fields.Has(m) {
			needsNext = true
		}
	}
	if maskSet["recommendedVideos"] && !fields.Has("recommendedVideos") {
		needsNext = true
	}

	var commentTokens []map[string]string
	if needsNext && len(nextRaw) > 0 {
		var n nextDoc
		if err := json.Unmarshal(nextRaw, &n); err == nil {
			_ = fields.Set("recommendedVideos", extractRecommended(n))
		}
		commentTokens = extractCommentTokens(nextRaw)
	}
	if !fields.Has("recommendedVideos") {
		_ = fields.Set("recommendedVideos", []any{})
	}

	// Drop keys not in mask.
	for _, k := range fields.Keys() {
		if !maskSet[k] {
			fields.Delete(k)
		}
	}

	// Synthesised defaults, irrespective of upstream presence.
	_ = fields.Set("videoThumbnails", videoThumbnails(p.VideoDetails.VideoID, maxStreamWidth(p.StreamingData.Formats, p.StreamingData.AdaptiveFormats)))
	_ = fields.Set("captions", []any{})
	_ = fields.Set("keywords", p.VideoDetails.Keywords)
	_ = fields.Set("rating", 0)
	_ = fields.Set("dislikeCount", 0)

	// The gateway does not serve HLS.
	fields.Delete("hlsUrl")

	if settings.RetainNullKeys {
		for _, m := range mask {
			if !fields.Has(m) {
				fields.SetNull(m)
			}
		}
	}

	comments := make([]map[string]string, 0, len(commentTokens))
	for _, tok := range commentTokens {
		comments = append(comments, map[string]string{
			"title": "Comments",
			"url":   fmt.Sprintf("/api/v1/comments/%s?continuation=%s", p.VideoDetails.VideoID, tok["token"]),
			"token": tok["token"],
		})
	}
	_ = fields.Set("comments", comments)

	if settings.ReturnInnertube {
		_ = fields.Set("innertube", map[string]json.RawMessage{"player": playerRaw, "next": nextRaw})
	}

	if settings.SortToInvSchema {
		fields.Reorder(mask)
	}

	return fields.MarshalJSON()
}

func publishedUnix(dateStr string) string {
	t, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return "0"
	}
	return strconv.FormatInt(t.Unix(), 10)
}

func extractRecommended(n nextDoc) []any {
	out := []any{}
	for _, raw := range n.Contents.TwoColumnWatchNextResults.SecondaryResults.SecondaryResults.Results {
		var wrap struct {
			CompactVideoRenderer struct {
				VideoID string `json:"videoId"`
				Title   struct {
					SimpleText string `json:"simpleText"`
				} `json:"title"`
			} `json:"compactVideoRenderer"`
		}
		if err := json.Unmarshal(raw, &wrap); err != nil {
			continue
		}
		if wrap.CompactVideoRenderer.VideoID == "" {
			continue
		}
		out = append(out, map[string]string{
			"videoId": wrap.CompactVideoRenderer.VideoID,
			"title":   wrap.CompactVideoRenderer.Title.SimpleText,
		})
	}
	return out
}

// continuationPattern scans the next payload's raw text for comment-section
// continuation tokens without needing to model YouTube's deeply nested,
// frequently-changing renderer tree in full.
var continuationPattern = regexp.MustCompile(`"continuation"\s*:\s*"([A-Za-z0-9_=\-]{10,})"`)

func extractCommentTokens(nextRaw json.RawMessage) []map[string]string {
	matches := continuationPattern.FindAllStringSubmatch(string(nextRaw), 1)
	out := make([]map[string]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, map[string]string{"token": m[1]})
	}
	return out
}
