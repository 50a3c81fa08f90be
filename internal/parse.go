package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	pkgerrs "github.com/jamesprial/go-ifunny-api-wrapper/pkg/errors"
	"github.com/jamesprial/go-ifunny-api-wrapper/pkg/types"
)

// Shape names one of the paging envelopes used across the APIs.
type Shape int

const (
	// ShapeCursors is {"data": {<key>: {"items": [...], "paging": {...}}}}.
	// The next cursor is only honoured when paging.hasNext is set.
	ShapeCursors Shape = iota
	// ShapeRawNext is {<key>: [...], "next": "<cursor>"|""|null}.
	ShapeRawNext
	// ShapeLastItem is {<key>: [...]}; the next cursor is the id of the last item.
	ShapeLastItem
)

func (s Shape) String() string {
	switch s {
	case ShapeCursors:
		return "cursors"
	case ShapeRawNext:
		return "raw next"
	case ShapeLastItem:
		return "last-item id"
	default:
		return "shape(" + strconv.Itoa(int(s)) + ")"
	}
}

const (
	defaultLimitParam  = "limit"
	defaultCursorParam = "next"
	defaultIDField     = "message_id"
)

// Endpoint describes the wire contract of one paginated collection.
type Endpoint struct {
	// Method defaults to GET.
	Method string
	Path   string
	// Key names the member holding the collection. For ShapeCursors an empty
	// key means the data member itself holds items and paging.
	Key   string
	Shape Shape
	// LimitParam defaults to "limit".
	LimitParam string
	// CursorParam defaults to "next".
	CursorParam string
	// IDField is read from the last item for ShapeLastItem. Defaults to "message_id".
	IDField string
	// Query holds extra parameters sent with every page.
	Query url.Values
	// FirstPage, when set, adds parameters to a request that carries no cursor.
	FirstPage func(q url.Values)
}

// Name identifies the endpoint in logs and errors.
func (e Endpoint) Name() string {
	method := e.Method
	if method == "" {
		method = http.MethodGet
	}
	return method + " " + e.Path
}

// Values builds the query of one page request. The cursor is passed through
// verbatim and omitted when empty.
func (e Endpoint) Values(params types.PageParams) url.Values {
	q := url.Values{}
	for k, vs := range e.Query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}

	limitParam := e.LimitParam
	if limitParam == "" {
		limitParam = defaultLimitParam
	}
	if params.Limit > 0 {
		q.Set(limitParam, strconv.Itoa(params.Limit))
	}

	if params.Next != "" {
		cursorParam := e.CursorParam
		if cursorParam == "" {
			cursorParam = defaultCursorParam
		}
		q.Set(cursorParam, string(params.Next))
	} else if e.FirstPage != nil {
		e.FirstPage(q)
	}

	return q
}

// FetchPage requests one page of ep and normalises it.
func (c *Client) FetchPage(ctx context.Context, ep Endpoint, params types.PageParams) (*types.RawPage, error) {
	method := ep.Method
	if method == "" {
		method = http.MethodGet
	}

	path := ep.Path
	if q := ep.Values(params).Encode(); q != "" {
		path += "?" + q
	}

	req, err := c.NewRequest(ctx, method, path, nil)
	if err != nil {
		return nil, err
	}

	body, err := c.DoRaw(req)
	if err != nil {
		return nil, err
	}

	page, err := ParsePage(body, ep)
	if err != nil {
		return nil, err
	}

	if c.logger != nil {
		c.logger.Debug("fetched page",
			slog.String("endpoint", ep.Name()),
			slog.String("cursor", string(params.Next)),
			slog.Int("items", len(page.Items)),
			slog.String("next", string(page.Next)))
	}
	return page, nil
}

// ParsePage normalises a paging envelope into items and a next cursor. An
// empty next cursor marks the last page.
func ParsePage(body []byte, ep Endpoint) (*types.RawPage, error) {
	switch ep.Shape {
	case ShapeCursors:
		return parseCursors(body, ep)
	case ShapeRawNext:
		return parseRawNext(body, ep)
	case ShapeLastItem:
		return parseLastItem(body, ep)
	default:
		return nil, &pkgerrs.ParseError{Operation: "page " + ep.Name(), Message: fmt.Sprintf("unknown envelope shape %v", ep.Shape)}
	}
}

func parseCursors(body []byte, ep Endpoint) (*types.RawPage, error) {
	var envelope struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	if err := decodeJSON(body, &envelope); err != nil {
		return nil, &pkgerrs.ParseError{Operation: "page " + ep.Name(), Err: err}
	}

	var container []byte
	if ep.Key == "" {
		raw, err := json.Marshal(envelope.Data)
		if err != nil {
			return nil, &pkgerrs.ParseError{Operation: "page " + ep.Name(), Err: err}
		}
		container = raw
	} else {
		raw, ok := envelope.Data[ep.Key]
		if !ok {
			return nil, &pkgerrs.ParseError{Operation: "page " + ep.Name(), Message: fmt.Sprintf("missing %q in data envelope", ep.Key)}
		}
		container = raw
	}

	var chunk types.CursorEnvelope
	if err := decodeJSON(container, &chunk); err != nil {
		return nil, &pkgerrs.ParseError{Operation: "page " + ep.Name(), Err: err}
	}

	page := &types.RawPage{Items: nonNil(chunk.Items)}
	if chunk.Paging.HasNext {
		page.Next = chunk.Paging.Cursors.Next
	}
	return page, nil
}

func parseRawNext(body []byte, ep Endpoint) (*types.RawPage, error) {
	var envelope map[string]json.RawMessage
	if err := decodeJSON(body, &envelope); err != nil {
		return nil, &pkgerrs.ParseError{Operation: "page " + ep.Name(), Err: err}
	}

	items, err := itemsUnder(envelope, ep)
	if err != nil {
		return nil, err
	}

	page := &types.RawPage{Items: items}
	if raw, ok := envelope["next"]; ok {
		if err := json.Unmarshal(raw, &page.Next); err != nil {
			return nil, &pkgerrs.ParseError{Operation: "page " + ep.Name(), Err: err}
		}
	}
	return page, nil
}

func parseLastItem(body []byte, ep Endpoint) (*types.RawPage, error) {
	var envelope map[string]json.RawMessage
	if err := decodeJSON(body, &envelope); err != nil {
		return nil, &pkgerrs.ParseError{Operation: "page " + ep.Name(), Err: err}
	}

	items, err := itemsUnder(envelope, ep)
	if err != nil {
		return nil, err
	}

	page := &types.RawPage{Items: items}
	if len(items) == 0 {
		return page, nil
	}

	field := ep.IDField
	if field == "" {
		field = defaultIDField
	}
	page.Next = cursorOf(items[len(items)-1][field])
	return page, nil
}

func itemsUnder(envelope map[string]json.RawMessage, ep Endpoint) ([]types.Object, error) {
	raw, ok := envelope[ep.Key]
	if !ok {
		return nil, &pkgerrs.ParseError{Operation: "page " + ep.Name(), Message: fmt.Sprintf("missing %q in response", ep.Key)}
	}

	var items []types.Object
	if err := decodeJSON(raw, &items); err != nil {
		return nil, &pkgerrs.ParseError{Operation: "page " + ep.Name(), Err: err}
	}
	return nonNil(items), nil
}

// cursorOf renders an item id as a cursor. Unknown types yield no cursor.
func cursorOf(v any) types.Cursor {
	switch id := v.(type) {
	case string:
		return types.Cursor(id)
	case json.Number:
		return types.Cursor(id.String())
	case float64:
		return types.Cursor(strconv.FormatFloat(id, 'f', -1, 64))
	default:
		return ""
	}
}

func nonNil(items []types.Object) []types.Object {
	if items == nil {
		return []types.Object{}
	}
	return items
}
