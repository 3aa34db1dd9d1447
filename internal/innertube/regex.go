// SPDX-License-Identifier: MIT

package innertube

import "regexp"

// playerIDPattern matches the "/s/player/{id}/..." path segment YouTube
// embeds in the iframe_api manifest and in watch-page HTML alike. Grounded
// on the path-extraction regex style in
// ytget-ytdlp/youtube/cipher/regex.go (candidate-pattern scanning over raw
// script/manifest text rather than a full HTML/JS parse).
var playerIDPattern = regexp.MustCompile(`/s/player/([a-zA-Z0-9_-]+)/`)

func extractPlayerID(manifest []byte) string {
	m := playerIDPattern.FindSubmatch(manifest)
	if m == nil {
		return ""
	}
	return string(m[1])
}
