package guardrails

import (
	"crypto/rand"
	"math/big"

	"github.com/opsgate/opsgate/config"
)

const tokenCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// phoneticWords is the fixed vocabulary for word-based tokens.
var phoneticWords = []string{"ALPHA", "BRAVO", "CHARLIE", "DELTA", "ECHO", "FOXTROT"}

// tokenGenerator produces confirmation tokens in the configured format:
// a grouped alphanumeric code (XXX-XXX) or a word from the phonetic
// vocabulary.
type tokenGenerator struct {
	cfg config.TokenConfig
}

// generate returns a token for which taken reports false, guaranteeing
// the active pending set stays collision-free. When the phonetic
// vocabulary is exhausted by pending tokens it falls back to an
// alphanumeric code rather than blocking.
func (g tokenGenerator) generate(taken func(string) bool) string {
	if g.cfg.Type == "word-based" {
		for _, i := range randomOrder(len(phoneticWords)) {
			if !taken(phoneticWords[i]) {
				return phoneticWords[i]
			}
		}
	}

	length := g.cfg.Length
	if length <= 0 {
		length = 6
	}
	for {
		token := randomCode(length)
		if !taken(token) {
			return token
		}
	}
}

// randomCode builds an uppercase alphanumeric code, grouped as XXX-XXX
// for the default six-character length.
func randomCode(length int) string {
	buf := make([]byte, length)
	for i := range buf {
		buf[i] = tokenCharset[randomInt(len(tokenCharset))]
	}
	if length == 6 {
		return string(buf[:3]) + "-" + string(buf[3:])
	}
	return string(buf)
}

// randomOrder returns a random permutation of [0, n).
func randomOrder(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := randomInt(i + 1)
		order[i], order[j] = order[j], order[i]
	}
	return order
}

func randomInt(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand only fails when the platform entropy source is
		// broken; there is no useful recovery for token generation.
		panic(err)
	}
	return int(v.Int64())
}
