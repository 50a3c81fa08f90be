package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Object is a raw JSON object as returned by the iFunny and chat APIs.
// Entity wrappers keep one of these as their cached payload.
type Object map[string]any

// Cursor is an opaque continuation token issued by a paginated endpoint.
// The empty cursor means "no further pages".
//
// Some endpoints send string cursors, others numeric ids, others null.
// All three decode into a Cursor.
type Cursor string

// UnmarshalJSON implements json.Unmarshaler to accept string, number and null cursors.
func (c *Cursor) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))

	if s == "null" || s == "" || s == "false" {
		*c = ""
		return nil
	}

	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*c = Cursor(str)
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(data, &num); err == nil {
		*c = Cursor(num.String())
		return nil
	}

	return fmt.Errorf("unrecognized type for cursor: %s", s)
}

// PageParams captures the paging controls shared by every collection endpoint.
type PageParams struct {
	// Limit is the number of items to request. Zero means the client's page size.
	// The iFunny API accepts at most 100 items per request.
	Limit int `validate:"gte=0,lte=100"`

	// Next is the cursor of the page to fetch. Leave empty for the first page.
	// Only values returned by a previous page (or a saved resume point) are valid.
	Next Cursor
}

// Paging is the paging block of the "cursors" envelope:
//
//	{"items": [...], "paging": {"cursors": {"next": "...", "prev": "..."}, "hasNext": true, "hasPrev": false}}
type Paging struct {
	Cursors struct {
		Next Cursor `json:"next"`
		Prev Cursor `json:"prev"`
	} `json:"cursors"`
	HasNext bool `json:"hasNext"`
	HasPrev bool `json:"hasPrev"`
}

// CursorEnvelope is a collection nested under a named key of the iFunny data envelope.
type CursorEnvelope struct {
	Items  []Object `json:"items"`
	Paging Paging   `json:"paging"`
}

// RawPage is a normalized page of raw items. An empty Next marks the last page.
type RawPage struct {
	Items []Object
	Next  Cursor
}

// Scheme is the Authorization scheme attached to a credential.
type Scheme string

const (
	// SchemeBasic tags a derived guest token.
	SchemeBasic Scheme = "Basic"
	// SchemeBearer tags a token obtained through a password grant.
	SchemeBearer Scheme = "Bearer"
)

// Credential is an Authorization header value split into scheme and token.
type Credential struct {
	Scheme Scheme
	Token  string
}

// String renders the credential as a header value. A credential without a
// scheme renders as the bare token.
func (c Credential) String() string {
	if c.Token == "" {
		return ""
	}
	if c.Scheme == "" {
		return c.Token
	}
	return string(c.Scheme) + " " + c.Token
}

// IsZero reports whether no token is held.
func (c Credential) IsZero() bool {
	return c.Token == ""
}

// Session is the in-memory authentication state of a client.
type Session struct {
	// AccountKey is the login identifier (email) the bearer token belongs to.
	AccountKey string
	// BearerToken is empty while the client is anonymous.
	BearerToken string
	// ExpiresIn is the lifetime in seconds reported by the token endpoint.
	// It is informational only.
	ExpiresIn int
	// AccountID is the platform id of the account, once it has been fetched.
	AccountID string
}

// Authenticated reports whether a bearer token is held.
func (s Session) Authenticated() bool {
	return s.BearerToken != ""
}

// TokenResponse is the body returned by the password grant endpoint.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// TaskResponse describes an asynchronous server-side job such as a content upload.
type TaskResponse struct {
	ID         string `json:"id"`
	State      string `json:"state"`
	Type       string `json:"type"`
	RetryAfter int    `json:"retry_after,omitempty"`
	Result     *struct {
		CID string `json:"cid"`
	} `json:"result,omitempty"`
}
