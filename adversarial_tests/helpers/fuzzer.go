package helpers

import (
	"math/rand"
	"strings"
)

// Fuzzer provides utilities for generating adversarial input strings
type Fuzzer struct {
	rnd *rand.Rand
}

// NewFuzzer creates a new Fuzzer with the given seed
func NewFuzzer(seed int64) *Fuzzer {
	return &Fuzzer{
		rnd: rand.New(rand.NewSource(seed)),
	}
}

// FuzzIdentifier generates hostile post, user and channel identifiers. Every
// one of them must end up as exactly one path segment of a request.
func (f *Fuzzer) FuzzIdentifier() []string {
	return []string{
		// Dot segments
		".",
		"..",
		"...",
		"../account",
		"../../oauth2/token",
		"..\\..\\windows",

		// Separators and URL syntax
		"a/b",
		"/leading",
		"trailing/",
		"id?limit=100",
		"id#fragment",
		"id;param",
		"id%2Fencoded",
		"%2E%2E",
		"sendbird_group_channel_1/../members",

		// Whitespace and control characters
		"id with spaces",
		"id\twith\ttabs",
		"id\nnewline",
		"id\x00nul",
		"id\x1b[31m",

		// Unicode
		"café",
		"тест",
		"测试",
		"🚀rocket",
		"id‮evil",

		// Injection-looking payloads
		"post' OR '1'='1",
		"<script>alert(1)</script>",
		"${jndi:ldap://x}",

		// Long
		strings.Repeat("a", 2048),
	}
}

// FuzzQuery generates search queries that must travel as one query value.
func (f *Fuzzer) FuzzQuery() []string {
	return []string{
		"",
		" ",
		"a&limit=1000",
		"q=other",
		"100%",
		"#hashtag",
		"+plus+",
		"a\u0000b",
		"😂",
		strings.Repeat("meme ", 200),
	}
}

// RandomString generates a random string of the given length drawn from
// letters, digits and URL-significant punctuation.
func (f *Fuzzer) RandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789./?#%&=+ _-"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[f.rnd.Intn(len(charset))]
	}
	return string(b)
}

// RandomIdentifiers returns n random identifiers of up to maxLen bytes.
func (f *Fuzzer) RandomIdentifiers(n, maxLen int) []string {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, f.RandomString(1+f.rnd.Intn(maxLen)))
	}
	return ids
}
