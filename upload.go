package ifunny

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	pkgerrs "github.com/jamesprial/go-ifunny-api-wrapper/pkg/errors"
	"github.com/jamesprial/go-ifunny-api-wrapper/pkg/types"
)

// DefaultUploadTimeout bounds how long UploadContent waits for processing.
const DefaultUploadTimeout = 15 * time.Second

// UploadOptions controls how content is published.
type UploadOptions struct {
	Tags []string
	// Type is the media type, "pic" unless set.
	Type string
	// Visibility is "public" unless set; "subscribers" limits the audience.
	Visibility string
	// Wait polls the upload task until the post exists.
	Wait bool
	// Timeout bounds the wait. Defaults to DefaultUploadTimeout.
	Timeout time.Duration
}

// UploadContent publishes media read from r.
//
// Without opts.Wait the pending task id is returned as soon as the server
// accepts the file. With opts.Wait the task is polled every
// Config.TaskPollInterval, twice per second of opts.Timeout, until the post is
// created; a task that never completes yields an *errors.TimeoutError.
func (c *Client) UploadContent(ctx context.Context, r io.Reader, opts UploadOptions) (*UploadResult, error) {
	body, contentType, err := uploadForm(r, opts)
	if err != nil {
		return nil, err
	}

	req, err := c.api.NewRequest(ctx, http.MethodPost, "content", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	var task types.TaskResponse
	if _, err := c.api.Do(req, &task); err != nil {
		return nil, err
	}
	if task.ID == "" {
		return nil, &pkgerrs.ParseError{Operation: "upload content", Message: "response has no task id"}
	}

	if c.config.Logger != nil {
		c.config.Logger.Debug("content uploaded", "task", task.ID, "wait", opts.Wait)
	}

	result := &UploadResult{TaskID: task.ID}
	if !opts.Wait {
		return result, nil
	}

	post, err := c.awaitTask(ctx, task.ID, opts.Timeout)
	if err != nil {
		return nil, err
	}
	result.Post = post
	return result, nil
}

func uploadForm(r io.Reader, opts UploadOptions) (*bytes.Buffer, string, error) {
	tags := opts.Tags
	if tags == nil {
		tags = []string{}
	}
	encodedTags, err := json.Marshal(tags)
	if err != nil {
		return nil, "", &pkgerrs.ValidationError{Field: "Tags", Message: err.Error()}
	}

	contentType := opts.Type
	if contentType == "" {
		contentType = "pic"
	}
	visibility := opts.Visibility
	if visibility == "" {
		visibility = "public"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("image", "image.png")
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, "", &pkgerrs.RequestError{Operation: "upload content", Message: "failed to read media", Err: err}
	}

	fields := [][2]string{
		{"tags", string(encodedTags)},
		{"type", contentType},
		{"visibility", visibility},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// awaitTask polls tasks/{id} until it reports the created content id.
func (c *Client) awaitTask(ctx context.Context, id string, timeout time.Duration) (*Post, error) {
	if timeout <= 0 {
		timeout = DefaultUploadTimeout
	}
	attempts := int(timeout.Seconds() * 2)
	if attempts < 1 {
		attempts = 1
	}

	path := "tasks/" + pathSegment(id)
	ticker := time.NewTicker(c.config.TaskPollInterval)
	defer ticker.Stop()
	for attempt := 1; attempt <= attempts; attempt++ {
		req, err := c.api.NewRequest(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}

		var task types.TaskResponse
		if _, err := c.api.Do(req, &task); err != nil {
			return nil, err
		}
		if task.Result != nil && task.Result.CID != "" {
			return c.Post(task.Result.CID), nil
		}

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return nil, &pkgerrs.TimeoutError{Operation: "upload task " + id, Attempts: attempts}
}
