// SPDX-License-Identifier: MIT

package api

import (
	"net/url"
	"strings"
)

// maliciousCipherTokens are the belt-and-braces substrings spec.md §4.4
// requires /decipher_stream to reject in a decoded signatureCipher, ahead
// of C4's own sandboxing.
var maliciousCipherTokens = []string{
	`"`, `'`, `;`, "function", "for", "while", "(", ")", "{", "}", "[", "]",
}

// looksMalicious reports whether the url-decoded signatureCipher contains
// any token that would suggest an attempt to break out of the expected
// "s=...&sp=...&url=..." shape and inject arbitrary script into C4's
// sandbox.
func looksMalicious(signatureCipher string) bool {
	decoded, err := url.QueryUnescape(signatureCipher)
	if err != nil {
		decoded = signatureCipher
	}
	for _, token := range maliciousCipherTokens {
		if strings.Contains(decoded, token) {
			return true
		}
	}
	return false
}
