package test_helpers

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const cursorPrefix = "page-"

// PageCursor returns the opaque cursor the mock servers issue for page index.
func PageCursor(index int) string {
	return cursorPrefix + strconv.Itoa(index)
}

// PageIndex maps a cursor issued by PageCursor back to its page. The empty
// cursor is the first page; an unknown cursor returns -1.
func PageIndex(cursor string) int {
	if cursor == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimPrefix(cursor, cursorPrefix))
	if err != nil || !strings.HasPrefix(cursor, cursorPrefix) {
		return -1
	}
	return n
}

// Items returns n raw items with unique ids under idField and a "seq" field
// holding their position, starting at from.
func Items(idField string, from, n int) []map[string]any {
	items := make([]map[string]any, 0, n)
	for i := from; i < from+n; i++ {
		items = append(items, map[string]any{
			idField: uuid.NewString(),
			"seq":   i,
		})
	}
	return items
}

// Split cuts items into pages of size items each.
func Split(items []map[string]any, size int) [][]map[string]any {
	var pages [][]map[string]any
	for len(items) > size {
		pages = append(pages, items[:size])
		items = items[size:]
	}
	return append(pages, items)
}

// CursorEnvelope renders an iFunny collection page. An empty next marks the
// last page the way the API does: a null cursor and hasNext false.
func CursorEnvelope(key string, items []map[string]any, next string) string {
	if items == nil {
		items = []map[string]any{}
	}
	var nextCursor any
	if next != "" {
		nextCursor = next
	}

	container := map[string]any{
		"items": items,
		"paging": map[string]any{
			"cursors": map[string]any{"next": nextCursor, "prev": nil},
			"hasNext": next != "",
			"hasPrev": false,
		},
	}

	var data any = container
	if key != "" {
		data = map[string]any{key: container}
	}
	return mustJSON(map[string]any{"data": data, "status": 200})
}

// RawNextEnvelope renders a chat API collection page with a raw "next" cursor.
func RawNextEnvelope(key string, items []map[string]any, next string) string {
	if items == nil {
		items = []map[string]any{}
	}
	return mustJSON(map[string]any{key: items, "next": next})
}

// ErrorEnvelope renders an iFunny error body.
func ErrorEnvelope(code, description string) string {
	return fmt.Sprintf(`{"error":%q,"error_description":%q}`, code, description)
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("test_helpers: cannot encode fixture: %v", err))
	}
	return string(data)
}
