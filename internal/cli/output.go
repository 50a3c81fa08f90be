package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/itchyny/gojq"
)

// printer writes values as JSON lines, optionally through a jq filter.
type printer struct {
	out  io.Writer
	enc  *json.Encoder
	code *gojq.Code
}

func newPrinter(out io.Writer, filter string) (*printer, error) {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	p := &printer{out: out, enc: enc}
	if filter == "" {
		return p, nil
	}

	query, err := gojq.Parse(filter)
	if err != nil {
		return nil, fmt.Errorf("invalid --jq filter: %w", err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("invalid --jq filter: %w", err)
	}
	p.code = code
	return p, nil
}

// Print writes v, or every result of the filter applied to v.
func (p *printer) Print(ctx context.Context, v any) error {
	if p.code == nil {
		return p.enc.Encode(v)
	}

	input, err := normalize(v)
	if err != nil {
		return err
	}
	iter := p.code.RunWithContext(ctx, input)
	for {
		result, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, isErr := result.(error); isErr {
			return fmt.Errorf("jq: %w", err)
		}
		if err := p.enc.Encode(result); err != nil {
			return err
		}
	}
}

// normalize converts v to the plain maps, slices and float64s gojq accepts.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
