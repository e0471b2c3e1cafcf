package discovery

import (
	"fmt"
	"io"
	"reflect"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// VersionHash fingerprints the argument tuple into a version_info string.
// The encoding is canonical (map keys are sorted) so the result is
// deterministic for the life of the process; callers compare by equality.
// The output never collides with the "no prior version" sentinel "0".
func VersionHash(args ...interface{}) string {
	digest := xxhash.New()
	for _, arg := range args {
		writeCanonical(digest, arg)
		_, _ = io.WriteString(digest, ";")
	}
	sum := digest.Sum64()
	if sum == 0 {
		sum = 1
	}
	return strconv.FormatUint(sum, 10)
}

func writeCanonical(w io.Writer, v interface{}) {
	if v == nil {
		_, _ = io.WriteString(w, "nil")
		return
	}
	switch val := v.(type) {
	case string:
		fmt.Fprintf(w, "%q", val)
		return
	case []byte:
		_, _ = w.Write(val)
		return
	case []string:
		_, _ = io.WriteString(w, "[")
		for _, s := range val {
			fmt.Fprintf(w, "%q,", s)
		}
		_, _ = io.WriteString(w, "]")
		return
	}
	writeCanonicalReflect(w, reflect.ValueOf(v))
}

func writeCanonicalReflect(w io.Writer, rv reflect.Value) {
	switch rv.Kind() {
	case reflect.Interface, reflect.Pointer:
		if rv.IsNil() {
			_, _ = io.WriteString(w, "nil")
			return
		}
		writeCanonicalReflect(w, rv.Elem())
	case reflect.Map:
		keys := make([]string, 0, rv.Len())
		byKey := make(map[string]reflect.Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key := fmt.Sprint(iter.Key().Interface())
			keys = append(keys, key)
			byKey[key] = iter.Value()
		}
		sort.Strings(keys)
		_, _ = io.WriteString(w, "{")
		for _, key := range keys {
			fmt.Fprintf(w, "%q:", key)
			writeCanonicalReflect(w, byKey[key])
			_, _ = io.WriteString(w, ",")
		}
		_, _ = io.WriteString(w, "}")
	case reflect.Slice, reflect.Array:
		_, _ = io.WriteString(w, "[")
		for i := 0; i < rv.Len(); i++ {
			writeCanonicalReflect(w, rv.Index(i))
			_, _ = io.WriteString(w, ",")
		}
		_, _ = io.WriteString(w, "]")
	case reflect.Struct:
		t := rv.Type()
		_, _ = io.WriteString(w, "{")
		for i := 0; i < rv.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			fmt.Fprintf(w, "%q:", t.Field(i).Name)
			writeCanonicalReflect(w, rv.Field(i))
			_, _ = io.WriteString(w, ",")
		}
		_, _ = io.WriteString(w, "}")
	default:
		fmt.Fprintf(w, "%v", rv.Interface())
	}
}
