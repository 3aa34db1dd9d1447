// SPDX-License-Identifier: MIT

// Package cipher implements C4: deciphering the signatureCipher blob
// Innertube attaches to formats/adaptiveFormats entries whenever it
// declines to hand back a directly usable stream url.
//
// Grounded on the decipher-function extraction technique in
// ytget-ytdlp/youtube/cipher/cipher.go's tryMiniJSDecipher: locate the
// player.js decipher function, the transform object it calls into, and
// the ordered sequence of calls it makes, then reassemble only that
// minimal program rather than evaluating the entire (untrusted,
// multi-megabyte) player.js. Run on goja instead of otto (the majority
// JS-VM choice across the retrieved examples, and one with modern
// ECMAScript support) — see DESIGN.md.
package cipher

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/dop251/goja"
)

// Errors returned by DecipherStream.
var (
	ErrNoDecipherFunction = errors.New("cipher: could not locate decipher function in player.js")
	ErrNoTransformObject  = errors.New("cipher: could not locate transform object in player.js")
	ErrNoOperations       = errors.New("cipher: decipher function has no transform calls")
	ErrEvalFailed         = errors.New("cipher: javascript evaluation failed")
)

const decipherFuncName = "yaytapiDecipher"

var vmBudget = 2 * time.Second

var (
	decipherFnPattern = regexp.MustCompile(`function\s*([a-zA-Z0-9$]*)\s*\(\s*([a-zA-Z0-9$]+)\s*\)\s*\{([\s\S]*?)\}`)
)

type program struct {
	source string
}

// buildProgram extracts the minimal transform object + decipher function
// pairing from playerJS and assembles a small, self-contained JS program
// exposing decipherFuncName(signature string) string.
func buildProgram(playerJS string) (*program, error) {
	var param, body string
	for _, m := range decipherFnPattern.FindAllStringSubmatch(playerJS, -1) {
		p, b := m[2], m[3]
		if strings.Contains(b, p+`.split("")`) && strings.Contains(b, "return "+p+`.join("")`) {
			param, body = p, b
			break
		}
	}
	if param == "" {
		return nil, ErrNoDecipherFunction
	}

	objNameRe := regexp.MustCompile(`([a-zA-Z0-9$]+)\.[a-zA-Z0-9$]+\(` + regexp.QuoteMeta(param) + `(?:,\s*\d+)?\)`)
	om := objNameRe.FindStringSubmatch(body)
	if len(om) < 2 {
		return nil, ErrNoTransformObject
	}
	obj := om[1]

	objRe := regexp.MustCompile(`(?:var|let|const)\s+` + regexp.QuoteMeta(obj) + `\s*=\s*\{([\s\S]*?)\}\s*;`)
	om2 := objRe.FindStringSubmatch(playerJS)
	if len(om2) < 2 {
		return nil, ErrNoTransformObject
	}
	objBody := om2[1]

	callRe := regexp.MustCompile(regexp.QuoteMeta(obj) + `\.([a-zA-Z0-9$]+)\(` + regexp.QuoteMeta(param) + `(?:,\s*(\d+))?\)`)
	calls := callRe.FindAllStringSubmatch(body, -1)
	if len(calls) == 0 {
		return nil, ErrNoOperations
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "var %s={%s};\n", obj, objBody)
	fmt.Fprintf(&sb, "function %s(%s){\n", decipherFuncName, param)
	fmt.Fprintf(&sb, "%s=%s.split(\"\");\n", param, param)
	for _, c := range calls {
		fn, arg := c[1], c[2]
		if arg != "" {
			fmt.Fprintf(&sb, "%s.%s(%s,%s);\n", obj, fn, param, arg)
		} else {
			fmt.Fprintf(&sb, "%s.%s(%s);\n", obj, fn, param)
		}
	}
	fmt.Fprintf(&sb, "return %s.join(\"\");}\n", param)

	return &program{source: sb.String()}, nil
}

func (p *program) run(signature string) (string, error) {
	vm := goja.New()
	vm.SetMaxCallStackSize(64)

	done := make(chan struct{})
	go func() {
		time.Sleep(vmBudget)
		close(done)
	}()
	go func() {
		<-done
		vm.Interrupt("decipher budget exceeded")
	}()

	if _, err := vm.RunString(p.source); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEvalFailed, err)
	}
	fn, ok := goja.AssertFunction(vm.Get(decipherFuncName))
	if !ok {
		return "", ErrNoDecipherFunction
	}
	result, err := fn(goja.Undefined(), vm.ToValue(signature))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEvalFailed, err)
	}
	return result.String(), nil
}

// DecipherStream applies scriptSource's currently published deciphering
// routine to a single signatureCipher blob (an urlencoded query string
// carrying s, sp, and url fields) and returns the resulting playable url.
func DecipherStream(signatureCipher, scriptSource string) (string, error) {
	values, err := url.ParseQuery(signatureCipher)
	if err != nil {
		return "", fmt.Errorf("cipher: invalid signature cipher: %w", err)
	}
	signature := values.Get("s")
	sp := values.Get("sp")
	if sp == "" {
		sp = "signature"
	}
	baseURL := values.Get("url")
	if baseURL == "" {
		return "", fmt.Errorf("cipher: signature cipher missing url field")
	}

	prog, err := buildProgram(scriptSource)
	if err != nil {
		return "", err
	}
	deciphered, err := prog.run(signature)
	if err != nil {
		return "", err
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("cipher: invalid base url: %w", err)
	}
	q := parsed.Query()
	q.Set(sp, deciphered)
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}

// DecipherStreams runs DecipherStream over a batch of signatureCipher
// blobs, reusing one compiled program across the whole batch. A cipher
// that fails to decipher yields an empty string at its index rather than
// aborting the batch.
func DecipherStreams(signatureCiphers []string, scriptSource string) ([]string, error) {
	prog, err := buildProgram(scriptSource)
	if err != nil {
		return nil, err
	}

	out := make([]string, len(signatureCiphers))
	for i, sc := range signatureCiphers {
		values, err := url.ParseQuery(sc)
		if err != nil {
			continue
		}
		sp := values.Get("sp")
		if sp == "" {
			sp = "signature"
		}
		baseURL := values.Get("url")
		if baseURL == "" {
			continue
		}
		deciphered, err := prog.run(values.Get("s"))
		if err != nil {
			continue
		}
		parsed, err := url.Parse(baseURL)
		if err != nil {
			continue
		}
		q := parsed.Query()
		q.Set(sp, deciphered)
		parsed.RawQuery = q.Encode()
		out[i] = parsed.String()
	}
	return out, nil
}
