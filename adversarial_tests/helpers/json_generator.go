package helpers

import (
	"fmt"
	"strings"
)

// JSONGenerator creates malicious and malformed paging envelopes for testing
type JSONGenerator struct{}

// NewJSONGenerator creates a new JSON generator
func NewJSONGenerator() *JSONGenerator {
	return &JSONGenerator{}
}

// MalformedCursorEnvelopes are iFunny feed bodies whose "content" collection
// is broken in some way.
func (g *JSONGenerator) MalformedCursorEnvelopes() []string {
	return []string{
		// Not JSON at all
		``,
		`<html>502 Bad Gateway</html>`,
		`{"data":`,
		`{"data":{"content":{"items":[{"id":"p1"`,

		// Wrong top-level types
		`[]`,
		`"data"`,
		`12345`,
		`{"data":[]}`,
		`{"data":"content"}`,

		// Missing or mistyped collection
		`{"data":{}}`,
		`{"data":{"other":{"items":[]}}}`,
		`{"data":{"content":"items"}}`,
		`{"data":{"content":{"items":"p1"}}}`,
		`{"data":{"content":{"items":{"id":"p1"}}}}`,
		`{"data":{"content":{"items":[1,2,3]}}}`,
		`{"data":{"content":{"items":["p1"]}}}`,

		// Mistyped paging
		`{"data":{"content":{"items":[],"paging":"next"}}}`,
		`{"data":{"content":{"items":[],"paging":{"hasNext":"yes"}}}}`,
		`{"data":{"content":{"items":[],"paging":{"hasNext":true,"cursors":{"next":{"id":1}}}}}}`,
		`{"data":{"content":{"items":[],"paging":{"hasNext":true,"cursors":{"next":[1]}}}}}`,
	}
}

// TolerableCursorEnvelopes are odd but valid bodies: each must parse.
func (g *JSONGenerator) TolerableCursorEnvelopes() map[string]string {
	return map[string]string{
		"null items":          `{"data":{"content":{"items":null}}}`,
		"missing paging":      `{"data":{"content":{"items":[{"id":"p1"}]}}}`,
		"numeric cursor":      `{"data":{"content":{"items":[],"paging":{"hasNext":true,"cursors":{"next":1700000000000}}}}}`,
		"null cursor":         `{"data":{"content":{"items":[],"paging":{"hasNext":true,"cursors":{"next":null}}}}}`,
		"cursor without flag": `{"data":{"content":{"items":[],"paging":{"hasNext":false,"cursors":{"next":"abc"}}}}}`,
		"extra members":       `{"data":{"content":{"items":[],"paging":{},"junk":[1,{"a":null}]}},"status":200,"meta":{}}`,
		"null item":           `{"data":{"content":{"items":[null,{"id":"p1"}]}}}`,
	}
}

// MalformedRawNextEnvelopes are chat member bodies with broken shapes.
func (g *JSONGenerator) MalformedRawNextEnvelopes() []string {
	return []string{
		``,
		`{`,
		`[]`,
		`{"next":"abc"}`,
		`{"members":"u1"}`,
		`{"members":{"user_id":"u1"}}`,
		`{"members":[true]}`,
		`{"members":[],"next":{"token":"x"}}`,
		`{"members":[],"next":[]}`,
		`{"members":[],"next":true}`,
	}
}

// MalformedLastItemEnvelopes are chat message bodies with broken shapes.
func (g *JSONGenerator) MalformedLastItemEnvelopes() []string {
	return []string{
		``,
		`null`,
		`{"message":[]}`,
		`{"messages":{}}`,
		`{"messages":[[]]}`,
		`{"messages":["hello"]}`,
	}
}

// DeeplyNested wraps a valid feed page in depth levels of nested arrays
// inside an ignored member.
func (g *JSONGenerator) DeeplyNested(depth int) string {
	return fmt.Sprintf(`{"data":{"content":{"items":[],"junk":%s%s}}}`,
		strings.Repeat("[", depth), strings.Repeat("]", depth))
}

// LargeItemPage builds a feed page of n posts with padding bytes of text each.
func (g *JSONGenerator) LargeItemPage(n, padding int) string {
	var b strings.Builder
	b.WriteString(`{"data":{"content":{"items":[`)
	text := strings.Repeat("x", padding)
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, `{"id":"p%d","title":%q}`, i, text)
	}
	b.WriteString(`],"paging":{"hasNext":false}}}}`)
	return b.String()
}
