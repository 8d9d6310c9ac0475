package readers

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cmgoffena13/file-loader/internal/domain"
)

type jsonReader struct {
	path    string
	src     domain.Source
	gzipped bool

	closers []io.Closer
	dec     *json.Decoder
	first   map[string]any
	hasItem bool
}

func newJSONReader(path string, src domain.Source, gzipped bool) *jsonReader {
	return &jsonReader{path: path, src: src, gzipped: gzipped}
}

// Open positions the decoder on the configured array and buffers the first
// item: the declared field set for a JSON source is the union of keys of the
// first item of the stream.
func (r *jsonReader) Open(ctx context.Context) error {
	file, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", r.path, err)
	}
	r.closers = append(r.closers, file)

	var stream io.Reader = file
	if r.gzipped {
		gz, err := gzip.NewReader(stream)
		if err != nil {
			r.Close()
			return fmt.Errorf("failed to open gzip stream for %s: %w", r.path, err)
		}
		r.closers = append(r.closers, gz)
		stream = gz
	}

	r.dec = json.NewDecoder(stream)
	r.dec.UseNumber()

	if err := r.seekArray(); err != nil {
		r.Close()
		return err
	}

	base := filepath.Base(r.path)
	if !r.dec.More() {
		r.Close()
		return fmt.Errorf("%w: no items in %s", domain.ErrMissingHeader, base)
	}
	var first any
	if err := r.dec.Decode(&first); err != nil {
		r.Close()
		return fmt.Errorf("failed to decode first item of %s: %w", r.path, err)
	}
	obj, ok := first.(map[string]any)
	if !ok {
		r.Close()
		return fmt.Errorf("%w: first item of %s is not an object", domain.ErrMissingHeader, base)
	}
	r.first = flatten(obj, "")
	r.hasItem = true

	observed := make(map[string]struct{}, len(r.first))
	for key := range r.first {
		observed[key] = struct{}{}
	}
	return validateHeader(r.src, observed, base)
}

// seekArray walks the configured dot-separated selector to the array of
// items. An empty selector means a top-level array.
func (r *jsonReader) seekArray() error {
	var path []string
	if trimmed := strings.TrimSpace(r.src.ArrayPath); trimmed != "" {
		path = strings.Split(trimmed, ".")
	}

	for _, key := range path {
		tok, err := r.dec.Token()
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", r.path, err)
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '{' {
			return fmt.Errorf("selector %q: expected object in %s", r.src.ArrayPath, r.path)
		}
		found := false
		for r.dec.More() {
			keyTok, err := r.dec.Token()
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", r.path, err)
			}
			name, _ := keyTok.(string)
			if name == key {
				found = true
				break
			}
			var skipped json.RawMessage
			if err := r.dec.Decode(&skipped); err != nil {
				return fmt.Errorf("failed to read %s: %w", r.path, err)
			}
		}
		if !found {
			return fmt.Errorf("selector %q: key %q not found in %s", r.src.ArrayPath, key, r.path)
		}
	}

	tok, err := r.dec.Token()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", r.path, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return fmt.Errorf("selector %q: expected array in %s", r.src.ArrayPath, r.path)
	}
	return nil
}

func (r *jsonReader) Read(ctx context.Context, fn RowFunc) error {
	itemIndex := 0
	number := 0
	emit := func(values map[string]any, rowErr error) error {
		itemIndex++
		if itemIndex <= r.src.SkipRows {
			return nil
		}
		number++
		return fn(Row{Number: number, Values: values, Err: rowErr})
	}

	if r.hasItem {
		r.hasItem = false
		if err := emit(r.first, nil); err != nil {
			return err
		}
		r.first = nil
	}

	for r.dec.More() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var item any
		if err := r.dec.Decode(&item); err != nil {
			return fmt.Errorf("failed to decode item in %s: %w", r.path, err)
		}
		obj, ok := item.(map[string]any)
		if !ok {
			if err := emit(map[string]any{}, fmt.Errorf("item is not an object")); err != nil {
				return err
			}
			continue
		}
		if err := emit(flatten(obj, ""), nil); err != nil {
			return err
		}
	}
	return nil
}

func (r *jsonReader) Close() error {
	var firstErr error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.closers = nil
	return firstErr
}

// flatten collapses nested objects into underscore-joined lowercase keys so
// nested payloads line up with flat row-model aliases. Lists of objects
// flatten with their index; lists of scalars stringify.
func flatten(obj map[string]any, parent string) map[string]any {
	out := make(map[string]any, len(obj))
	for key, value := range obj {
		name := strings.ToLower(key)
		if parent != "" {
			name = parent + "_" + name
		}
		switch v := value.(type) {
		case map[string]any:
			for nested, nestedVal := range flatten(v, name) {
				out[nested] = nestedVal
			}
		case []any:
			if len(v) > 0 {
				if _, isObj := v[0].(map[string]any); isObj {
					for i, item := range v {
						if nestedObj, ok := item.(map[string]any); ok {
							for nested, nestedVal := range flatten(nestedObj, name+"_"+strconv.Itoa(i)) {
								out[nested] = nestedVal
							}
						} else {
							out[name+"_"+strconv.Itoa(i)] = item
						}
					}
					continue
				}
			}
			parts := make([]string, len(v))
			for i, item := range v {
				parts[i] = fmt.Sprintf("%v", item)
			}
			out[name] = strings.Join(parts, ",")
		default:
			out[name] = value
		}
	}
	return out
}
