package ifunny

import (
	"context"

	"github.com/jamesprial/go-ifunny-api-wrapper/pkg/types"
)

// Page is one page of wrapped items plus the cursor of the page after it.
// An empty Next marks the last page.
type Page[T any] struct {
	Items []T
	Next  types.Cursor
}

// PageFunc fetches the page identified by params.Next.
type PageFunc[T any] func(ctx context.Context, params types.PageParams) (*Page[T], error)

// UploadResult identifies an upload. Post is set only when the upload was
// awaited.
type UploadResult struct {
	TaskID string
	Post   *Post
}
