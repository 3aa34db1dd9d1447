// SPDX-License-Identifier: MIT

// Package invidious implements C6, the field projector: it translates
// player/next Innertube payloads into an Invidious-shaped JSON object,
// honours a field mask, and fills in synthesised defaults the upstream
// payloads don't carry.
package invidious

// DefaultMask is the 37-field default projection of the public Invidious
// video schema.
var DefaultMask = []string{
	"type", "title", "videoId", "videoThumbnails", "storyboards",
	"description", "descriptionHtml", "published", "publishedText",
	"keywords", "viewCount", "likeCount", "dislikeCount", "paid",
	"premium", "isFamilyFriendly", "allowedRegions", "genre", "genreUrl",
	"author", "authorId", "authorUrl", "authorThumbnails",
	"subCountText", "lengthSeconds", "allowRatings", "rating",
	"isListed", "liveNow", "isUpcoming", "dashUrl", "adaptiveFormats",
	"formatStreams", "captions", "recommendedVideos", "comments",
	"hlsUrl", "premiereTimestamp",
}
