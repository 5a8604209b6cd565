package cache

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// keySalt perturbs the second hash so the two halves of the digest are
// independent.
const keySalt = "querycache/1\x00"

// DeriveKey turns a query descriptor and its parameters into a
// deterministic cache key of the form "<descriptor>:<32 hex chars>".
// Parameters are canonicalized by sorting keys lexicographically and
// JSON-encoding each value, so semantically identical parameter maps hash
// identically regardless of construction order. The digest is two xxhash64
// sums (the second salted), 128 bits total. xxhash is not collision
// resistant in the cryptographic sense; a collision returns a wrong cached
// value, which is an accepted risk for a query cache.
//
// Keeping the descriptor as a plaintext prefix makes keys globbable, which
// is what pattern invalidation relies on.
func DeriveKey(descriptor string, params map[string]any) string {
	payload := descriptor + ":" + canonicalParams(params)
	h1 := xxhash.Sum64String(payload)
	h2 := xxhash.Sum64String(keySalt + payload)
	return fmt.Sprintf("%s:%016x%016x", descriptor, h1, h2)
}

// canonicalParams serializes params to a canonical string. Values that
// cannot be JSON-encoded (channels, functions) are coerced to their %v
// form so derivation never fails.
func canonicalParams(params map[string]any) string {
	if len(params) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(encodeValue(params[k]))
	}
	sb.WriteByte('}')
	return sb.String()
}

func encodeValue(v any) string {
	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%q", fmt.Sprintf("%v", v))
	}
	return string(buf)
}
