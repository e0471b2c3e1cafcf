package templates

import (
	"bytes"
	"fmt"
	"strconv"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/cespare/xxhash/v2"
)

// RenderContext is the mapping a template is evaluated against.
type RenderContext map[string]interface{}

// NativeRenderer produces an already-structured configuration document,
// bypassing the YAML deserialization step.
type NativeRenderer func(ctx RenderContext) (map[string]interface{}, error)

// XdsTemplate is an addressable, named renderable with a stable checksum.
// It is either a text template (rendering bytes that parse as YAML) or a
// native renderer.
type XdsTemplate struct {
	name     string
	checksum string
	text     *template.Template
	native   NativeRenderer
}

var (
	nativeMu sync.RWMutex
	natives  = map[string]NativeRenderer{}
)

// RegisterNative makes a native renderer addressable as "native://<name>"
// in the template configuration.
func RegisterNative(name string, renderer NativeRenderer) {
	nativeMu.Lock()
	defer nativeMu.Unlock()
	if _, exists := natives[name]; exists {
		panic(fmt.Sprintf("native template %q registered twice", name))
	}
	natives[name] = renderer
}

// NewTextTemplate parses template source text. The checksum is a fingerprint
// of the source bytes, captured once at load.
func NewTextTemplate(name, source string) (*XdsTemplate, error) {
	tmpl, err := template.New(name).Funcs(sprig.FuncMap()).Parse(source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	return &XdsTemplate{
		name:     name,
		checksum: strconv.FormatUint(xxhash.Sum64String(source), 10),
		text:     tmpl,
	}, nil
}

// NewNativeTemplate resolves a registered native renderer. The checksum is a
// fingerprint of the renderer's registered identity.
func NewNativeTemplate(name string) (*XdsTemplate, error) {
	nativeMu.RLock()
	renderer, ok := natives[name]
	nativeMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no native template registered under %q", name)
	}
	return &XdsTemplate{
		name:     name,
		checksum: strconv.FormatUint(xxhash.Sum64String("native://"+name), 10),
		native:   renderer,
	}, nil
}

func (t *XdsTemplate) Name() string { return t.name }

// Checksum is stable for the life of the process and changes whenever the
// template source changes.
func (t *XdsTemplate) Checksum() string { return t.checksum }

// IsNative reports whether Render returns a structured document directly.
func (t *XdsTemplate) IsNative() bool { return t.native != nil }

// Render evaluates the template. Text templates return bytes; native
// templates return a document. Rendering must not mutate the context.
func (t *XdsTemplate) Render(ctx RenderContext) ([]byte, map[string]interface{}, error) {
	if t.native != nil {
		doc, err := t.native(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("native template %s: %w", t.name, err)
		}
		return nil, doc, nil
	}
	var buf bytes.Buffer
	if err := t.text.Execute(&buf, map[string]interface{}(ctx)); err != nil {
		return nil, nil, fmt.Errorf("failed to render template %s: %w", t.name, err)
	}
	return buf.Bytes(), nil, nil
}
