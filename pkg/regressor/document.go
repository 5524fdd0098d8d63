package regressor

import (
	"bufio"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/klauspost/compress/gzip"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed document.schema.json
var documentSchemaJSON string

// documentSchema is the compiled schema every model document must satisfy.
var documentSchema = mustCompileSchema(documentSchemaJSON, "document.schema.json")

func mustCompileSchema(raw string, name string) *jsonschema.Schema {
	var schemaDoc any
	if err := json.Unmarshal([]byte(raw), &schemaDoc); err != nil {
		panic(fmt.Sprintf("failed to parse embedded %s: %v", name, err))
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, schemaDoc); err != nil {
		panic(fmt.Sprintf("failed to add %s resource: %v", name, err))
	}

	sch, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("failed to compile %s: %v", name, err))
	}
	return sch
}

// DecodeFunc builds a Regressor from a document's params object.
type DecodeFunc func(params map[string]any) (Regressor, error)

var (
	kindsMu sync.RWMutex
	kinds   = map[string]DecodeFunc{
		"constant": decodeConstant,
		"linear":   decodeLinear,
		"trees":    decodeTrees,
	}
)

// Register makes a model kind decodable. Registering an existing kind replaces it.
func Register(kind string, fn DecodeFunc) {
	kindsMu.Lock()
	defer kindsMu.Unlock()
	kinds[kind] = fn
}

// Kinds lists the registered kinds in sorted order.
func Kinds() []string {
	kindsMu.RLock()
	defer kindsMu.RUnlock()
	out := make([]string, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func lookup(kind string) (DecodeFunc, bool) {
	kindsMu.RLock()
	defer kindsMu.RUnlock()
	fn, ok := kinds[kind]
	return fn, ok
}

// LoadFile opens path and decodes the model document in it.
func LoadFile(path string) (Regressor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Decode reads one model document from r. Gzip input is detected by its magic bytes.
func Decode(r io.Reader) (Regressor, error) {
	br := bufio.NewReader(r)

	var src io.Reader = br
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %v", ErrInvalidDocument, err)
		}
		defer zr.Close()
		src = zr
	}

	doc, err := jsonschema.UnmarshalJSON(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := documentSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	// the schema guarantees an object with a string kind and an object params
	obj := doc.(map[string]any)
	kind := obj["kind"].(string)
	params, _ := obj["params"].(map[string]any)

	fn, ok := lookup(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	m, err := fn(params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", kind, err)
	}

	if declared, ok := obj["features"].(json.Number); ok {
		f, _ := declared.Float64()
		n := int(f)
		if w, ok := m.(Widther); ok && w.Width() > n {
			return nil, fmt.Errorf("%w: %s model reads %d features, document declares %d",
				ErrFeatureWidth, kind, w.Width(), n)
		}
	}
	return m, nil
}

func decodeParams(params map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out,
		ErrorUnused: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(params); err != nil {
		return fmt.Errorf("%w: %v", ErrBadParams, err)
	}
	return nil
}
