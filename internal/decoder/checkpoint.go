package decoder

import (
	"fmt"
	"os"
	"strings"

	json "github.com/goccy/go-json"
)

// LoadLegacyBundle parses a JSON weight export and maps its legacy naming
// scheme onto this decoder's parameter keys.  The file holds nested objects
// whose leaves are 1-D or 2-D numeric arrays; 2-D kernels are stored
// input-major by the original trainer and are transposed here.  The mapping
// is best effort: leaves whose path is not recognised keep their original
// slash-joined key and are also listed in the second result so callers can
// log them.
func LoadLegacyBundle(data []byte) (Bundle, []string, error) {
	var root map[string]any
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, nil, fmt.Errorf("decoder: parse legacy bundle: %w", err)
	}
	bundle := make(Bundle)
	var unmapped []string
	if err := flattenLegacy(root, nil, bundle, &unmapped); err != nil {
		return nil, nil, err
	}
	return bundle, unmapped, nil
}

// LoadLegacyBundleFile reads and maps a legacy weight file from disk.
func LoadLegacyBundleFile(path string) (Bundle, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return LoadLegacyBundle(data)
}

func flattenLegacy(node map[string]any, path []string, bundle Bundle, unmapped *[]string) error {
	for name, value := range node {
		p := append(append([]string(nil), path...), name)
		switch v := value.(type) {
		case map[string]any:
			if err := flattenLegacy(v, p, bundle, unmapped); err != nil {
				return err
			}
		case []any:
			values, twoD, err := parseLeaf(v)
			if err != nil {
				return fmt.Errorf("decoder: legacy value %q: %w", strings.Join(p, "/"), err)
			}
			key, kernel, ok := translateLegacyPath(p)
			if !ok {
				key = strings.Join(p, "/")
				*unmapped = append(*unmapped, key)
			}
			if kernel && twoD != nil {
				values = transpose(twoD)
			}
			bundle[key] = values
		default:
			return fmt.Errorf("decoder: legacy value %q is neither object nor array", strings.Join(p, "/"))
		}
	}
	return nil
}

// parseLeaf converts a JSON array into a flat float32 slice.  For 2-D
// arrays the row structure is also returned so kernels can be transposed.
func parseLeaf(arr []any) ([]float32, [][]float32, error) {
	if len(arr) == 0 {
		return nil, nil, nil
	}
	if _, nested := arr[0].([]any); nested {
		rows := make([][]float32, len(arr))
		var flat []float32
		for i, rv := range arr {
			inner, ok := rv.([]any)
			if !ok {
				return nil, nil, fmt.Errorf("ragged array at row %d", i)
			}
			row := make([]float32, len(inner))
			for j, cv := range inner {
				f, ok := cv.(float64)
				if !ok {
					return nil, nil, fmt.Errorf("non-numeric value at [%d][%d]", i, j)
				}
				row[j] = float32(f)
			}
			rows[i] = row
			flat = append(flat, row...)
		}
		return flat, rows, nil
	}
	flat := make([]float32, len(arr))
	for i, v := range arr {
		f, ok := v.(float64)
		if !ok {
			return nil, nil, fmt.Errorf("non-numeric value at [%d]", i)
		}
		flat[i] = float32(f)
	}
	return flat, nil, nil
}

func transpose(rows [][]float32) []float32 {
	if len(rows) == 0 {
		return nil
	}
	r, c := len(rows), len(rows[0])
	out := make([]float32, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out[j*r+i] = rows[i][j]
		}
	}
	return out
}

// translateLegacyPath maps one legacy leaf path to an internal parameter
// key.  The second result reports whether the leaf is a kernel (and so
// needs transposing); the third whether the path was recognised.
func translateLegacyPath(path []string) (string, bool, bool) {
	join := func(parts ...string) string { return strings.Join(parts, "/") }
	switch {
	case len(path) == 2 && path[0] == "dense":
		switch path[1] {
		case "kernel":
			return "dense/w", true, true
		case "bias":
			return "dense/b", false, true
		}
	case len(path) == 2 && path[0] == "LayerNorm":
		if path[1] == "gamma" || path[1] == "beta" {
			return join("norm", path[1]), false, true
		}
	case len(path) >= 3 && strings.HasPrefix(path[0], "layer_"):
		layer := path[0]
		var sub string
		switch {
		case path[1] == "masked_multi_head":
			sub = "self"
		case strings.HasPrefix(path[1], "multi_head_"):
			sub = "memory_" + strings.TrimPrefix(path[1], "multi_head_")
		case path[1] == "multi_head":
			sub = "memory_0"
		case path[1] == "ffn":
			sub = "ffn"
		}
		if sub == "" {
			break
		}
		if key, kernel, ok := translateSubLayer(sub, path[2:]); ok {
			return join(layer, key), kernel, true
		}
	case len(path) >= 2 && strings.HasPrefix(path[0], "ADAP_"):
		adapter := "adapter_" + strings.TrimPrefix(path[0], "ADAP_")
		if key, kernel, ok := translateAdapter(path[1:]); ok {
			return join(adapter, key), kernel, true
		}
	}
	return "", false, false
}

func translateSubLayer(sub string, rest []string) (string, bool, bool) {
	if len(rest) == 2 && rest[0] == "LayerNorm" {
		if rest[1] == "gamma" || rest[1] == "beta" {
			return sub + "/norm_" + rest[1], false, true
		}
		return "", false, false
	}
	if len(rest) != 2 {
		return "", false, false
	}
	kernel := rest[1] == "kernel"
	if !kernel && rest[1] != "bias" {
		return "", false, false
	}
	var mat, bias string
	if sub == "ffn" {
		switch rest[0] {
		case "inner":
			mat, bias = "w1", "b1"
		case "outer":
			mat, bias = "w2", "b2"
		default:
			return "", false, false
		}
	} else {
		switch rest[0] {
		case "query":
			mat, bias = "wq", "bq"
		case "key":
			mat, bias = "wk", "bk"
		case "value":
			mat, bias = "wv", "bv"
		case "output":
			mat, bias = "wo", "bo"
		default:
			return "", false, false
		}
	}
	if kernel {
		return sub + "/" + mat, true, true
	}
	return sub + "/" + bias, false, true
}

func translateAdapter(rest []string) (string, bool, bool) {
	if len(rest) == 2 && rest[0] == "LayerNorm" {
		if rest[1] == "gamma" || rest[1] == "beta" {
			return "norm_" + rest[1], false, true
		}
		return "", false, false
	}
	if len(rest) != 2 {
		return "", false, false
	}
	kernel := rest[1] == "kernel"
	if !kernel && rest[1] != "bias" {
		return "", false, false
	}
	switch rest[0] {
	case "inner":
		if kernel {
			return "up", true, true
		}
		return "b_up", false, true
	case "outer":
		if kernel {
			return "down", true, true
		}
		return "b_down", false, true
	}
	return "", false, false
}
