// SPDX-License-Identifier: MIT

package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLooksMaliciousRejectsInjectionAttempt(t *testing.T) {
	assert.True(t, looksMalicious("a%3Bfor(b)"))
}

func TestLooksMaliciousAllowsOrdinaryCipher(t *testing.T) {
	assert.False(t, looksMalicious("s=abcdefgh%26sp%3Dsig%26url%3Dhttps%3A%2F%2Fr1.googlevideo.com%2Fvideoplayback"))
}
