package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/openfroyo/manifold/pkg/engine"
	"github.com/openfroyo/manifold/pkg/errdefs"
)

// Format is an output encoding.
type Format string

const (
	// FormatSelector writes one bare unique id per line.
	FormatSelector Format = "selector"

	// FormatJSON writes one JSON object per line.
	FormatJSON Format = "json"
)

// Formats lists the supported formats.
func Formats() []Format {
	return []Format{FormatSelector, FormatJSON}
}

// DefaultKeys are the record fields written when no keys are requested.
var DefaultKeys = []string{"unique_id", "name", "resource_type", "original_file_path"}

// fields maps record keys to their value on a resource.
var fields = map[string]func(*engine.Resource) interface{}{
	"unique_id":          func(r *engine.Resource) interface{} { return r.UniqueID },
	"name":               func(r *engine.Resource) interface{} { return r.Name },
	"resource_type":      func(r *engine.Resource) interface{} { return r.Type },
	"original_file_path": func(r *engine.Resource) interface{} { return r.OriginalFilePath },
	"package_name":       func(r *engine.Resource) interface{} { return r.Package },
	"path":               func(r *engine.Resource) interface{} { return r.Path },
	"fingerprint":        func(r *engine.Resource) interface{} { return r.Fingerprint },
	"depends_on":         func(r *engine.Resource) interface{} { return nonNil(r.DependsOn) },
}

// diffFields maps record keys to their value on a diff entry.
var diffFields = map[string]func(engine.NodeDiff) interface{}{
	"unique_id":     func(d engine.NodeDiff) interface{} { return d.UniqueID },
	"name":          func(d engine.NodeDiff) interface{} { return d.Name },
	"resource_type": func(d engine.NodeDiff) interface{} { return d.Type },
	"status":        func(d engine.NodeDiff) interface{} { return d.Status },
	"reasons":       func(d engine.NodeDiff) interface{} { return nonNil(d.Reasons) },
}

var diffKeys = []string{"unique_id", "name", "resource_type", "status", "reasons"}

// Encoder writes selection results in one format.
type Encoder struct {
	format Format
	keys   []string
}

// NewEncoder creates an encoder. keys select and order the fields of JSON
// records; none means DefaultKeys. Keys are ignored by the selector format.
func NewEncoder(format Format, keys ...string) (*Encoder, error) {
	switch format {
	case FormatSelector, FormatJSON:
	default:
		return nil, errdefs.NewEncodingError(fmt.Sprintf("unsupported output format %q", format), nil).
			WithCode(errdefs.CodeUnsupportedFormat).
			WithResource(string(format)).
			WithDetail("supported", Formats())
	}

	if len(keys) == 0 {
		keys = DefaultKeys
	}
	for _, k := range keys {
		if _, ok := fields[k]; !ok {
			return nil, errdefs.NewEncodingError(fmt.Sprintf("unsupported output key %q", k), nil).
				WithCode(errdefs.CodeUnsupportedFormat).
				WithResource(k)
		}
	}

	return &Encoder{format: format, keys: keys}, nil
}

// ParseKeys splits a comma-separated key list.
func ParseKeys(s string) []string {
	var keys []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// Format returns the encoder's format.
func (e *Encoder) Format() Format {
	return e.format
}

// Encode writes resources to w, one line each.
func (e *Encoder) Encode(w io.Writer, resources []*engine.Resource) error {
	bw := bufio.NewWriter(w)

	for _, r := range resources {
		var line []byte
		switch e.format {
		case FormatSelector:
			line = []byte(r.UniqueID)
		case FormatJSON:
			record, err := marshalRecord(e.keys, func(k string) interface{} { return fields[k](r) })
			if err != nil {
				return fmt.Errorf("failed to encode %s: %w", r.UniqueID, err)
			}
			line = record
		}

		if err := writeLine(bw, line); err != nil {
			return err
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	return nil
}

// EncodeDiff writes a diff report to w. The selector format lists the ids of
// added, modified and removed resources; the JSON format writes one record
// per entry with its status.
func (e *Encoder) EncodeDiff(w io.Writer, result *engine.DiffResult) error {
	bw := bufio.NewWriter(w)

	for _, d := range result.Entries {
		var line []byte
		switch e.format {
		case FormatSelector:
			if d.Status == engine.DiffUnchanged {
				continue
			}
			line = []byte(d.UniqueID)
		case FormatJSON:
			record, err := marshalRecord(diffKeys, func(k string) interface{} { return diffFields[k](d) })
			if err != nil {
				return fmt.Errorf("failed to encode %s: %w", d.UniqueID, err)
			}
			line = record
		}

		if err := writeLine(bw, line); err != nil {
			return err
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	return nil
}

// marshalRecord writes a JSON object with keys in the given order.
func marshalRecord(keys []string, value func(string) interface{}) ([]byte, error) {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(value(k))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s: %w", k, err)
		}
		sb.Write(kb)
		sb.WriteByte(':')
		sb.Write(vb)
	}
	sb.WriteByte('}')
	return []byte(sb.String()), nil
}

func writeLine(w *bufio.Writer, line []byte) error {
	if _, err := w.Write(line); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := w.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
