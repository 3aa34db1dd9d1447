// SPDX-License-Identifier: MIT

// Package innertube wraps the four Innertube call shapes the gateway needs
// (player, next, browse, and the iframe_api/player.js pair) as C2 in
// SPEC_FULL.md §4.2. Grounded on ytget-ytdlp/youtube/innertube (client
// shape, header conventions, client-name table) and the teacher's
// internal/openwebif.Client (context-scoped requests, zerolog field
// logging, retry/backoff knobs).
package innertube

// ClientContext selects which Innertube client identity a player request
// impersonates. The android context yields pre-signed stream URLs and
// skips deciphering; the web context is the default.
type ClientContext int

const (
	ClientWeb ClientContext = iota
	ClientAndroid
)

func (c ClientContext) name() string {
	if c == ClientAndroid {
		return "ANDROID"
	}
	return "WEB"
}

func (c ClientContext) version() string {
	if c == ClientAndroid {
		return "19.29.37"
	}
	return "2.20240614.01.00"
}

func (c ClientContext) clientScreen() string {
	if c == ClientAndroid {
		return ""
	}
	return "WATCH"
}
