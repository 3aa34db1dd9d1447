// SPDX-License-Identifier: MIT

package cipher

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// samplePlayerJS is a hand-built, minimal stand-in for a real player.js
// decipher routine: split into chars, swap two, reverse, splice, join.
const samplePlayerJS = `
var unrelatedThing = function(a,b) { return a+b; };
var Zx = {
  aa: function(a) { a.reverse(); },
  bb: function(a,b) { var c=a[0]; a[0]=a[b%a.length]; a[b%a.length]=c; },
  cc: function(a,b) { a.splice(0,b); }
};
function xyz(s) {
  s = s.split("");
  Zx.bb(s,3);
  Zx.aa(s);
  Zx.cc(s,2);
  return s.join("");
}
`

func TestBuildProgramExtractsCallSequence(t *testing.T) {
	prog, err := buildProgram(samplePlayerJS)
	require.NoError(t, err)
	assert.Contains(t, prog.source, "Zx.bb(s,3)")
	assert.Contains(t, prog.source, "Zx.aa(s)")
	assert.Contains(t, prog.source, "Zx.cc(s,2)")
}

func TestProgramRunDeciphersSignature(t *testing.T) {
	prog, err := buildProgram(samplePlayerJS)
	require.NoError(t, err)

	out, err := prog.run("abcdefgh")
	require.NoError(t, err)
	assert.NotEqual(t, "abcdefgh", out)
	assert.Len(t, out, 6) // two chars spliced off the front
}

func TestBuildProgramNoDecipherFunction(t *testing.T) {
	_, err := buildProgram("var x = 1;")
	require.ErrorIs(t, err, ErrNoDecipherFunction)
}

func TestDecipherStreamRewritesURL(t *testing.T) {
	prog, err := buildProgram(samplePlayerJS)
	require.NoError(t, err)
	deciphered, err := prog.run("abcdefgh")
	require.NoError(t, err)

	sc := url.Values{
		"s":   {"abcdefgh"},
		"sp":  {"sig"},
		"url": {"https://example.googlevideo.com/videoplayback?itag=18"},
	}.Encode()

	out, err := DecipherStream(sc, samplePlayerJS)
	require.NoError(t, err)

	parsed, err := url.Parse(out)
	require.NoError(t, err)
	assert.Equal(t, deciphered, parsed.Query().Get("sig"))
}

func TestDecipherStreamMissingURL(t *testing.T) {
	sc := url.Values{"s": {"abcdefgh"}}.Encode()
	_, err := DecipherStream(sc, samplePlayerJS)
	require.Error(t, err)
}

func TestDecipherStreamsBatch(t *testing.T) {
	sc1 := url.Values{"s": {"abcdefgh"}, "url": {"https://a.googlevideo.com/x?itag=1"}}.Encode()
	sc2 := url.Values{"s": {"zzzzzzzz"}, "url": {"https://a.googlevideo.com/x?itag=2"}}.Encode()

	out, err := DecipherStreams([]string{sc1, sc2}, samplePlayerJS)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.NotEmpty(t, out[0])
	assert.NotEmpty(t, out[1])
	assert.NotEqual(t, out[0], out[1])
}

func TestDecipherStreamsSkipsMalformedEntries(t *testing.T) {
	good := url.Values{"s": {"abcdefgh"}, "url": {"https://a.googlevideo.com/x?itag=1"}}.Encode()
	out, err := DecipherStreams([]string{good, "not a valid cipher at all %zz"}, samplePlayerJS)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.NotEmpty(t, out[0])
	assert.Empty(t, out[1])
}
