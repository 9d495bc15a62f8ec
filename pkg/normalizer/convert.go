package normalizer

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// identityFields are struct fields that stand for the whole tuple.
var identityFields = []string{"Id", "ID", "Hash", "CampaignId"}

// JSONSafe converts a decoded ABI value into something encoding/json keeps
// exact and postgres jsonb accepts. Integers of any width become decimal
// strings, byte arrays become 0x hex and tuples collapse to their identity
// field when they have one. NUL characters are dropped from strings since
// jsonb rejects \u0000.
func JSONSafe(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case *big.Int:
		if t == nil {
			return nil
		}
		return t.String()
	case big.Int:
		return t.String()
	case common.Address:
		return t.Hex()
	case common.Hash:
		return t.Hex()
	case string:
		return stripNUL(t)
	case bool:
		return t
	case []byte:
		return "0x" + hex.EncodeToString(t)
	}
	return convertValue(reflect.ValueOf(v))
}

func convertValue(rv reflect.Value) any {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return JSONSafe(rv.Elem().Interface())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			buf := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(buf), rv)
			return "0x" + hex.EncodeToString(buf)
		}
		return convertList(rv)
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return "0x" + hex.EncodeToString(rv.Bytes())
		}
		return convertList(rv)
	case reflect.Struct:
		return convertStruct(rv)
	case reflect.String:
		return stripNUL(rv.String())
	case reflect.Bool:
		return rv.Bool()
	default:
		return fmt.Sprint(rv.Interface())
	}
}

func convertList(rv reflect.Value) []any {
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = JSONSafe(rv.Index(i).Interface())
	}
	return out
}

func convertStruct(rv reflect.Value) any {
	for _, name := range identityFields {
		if f := rv.FieldByName(name); f.IsValid() && f.CanInterface() {
			return JSONSafe(f.Interface())
		}
	}

	rt := rv.Type()
	out := make(map[string]any, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		out[lowerFirst(field.Name)] = JSONSafe(rv.Field(i).Interface())
	}
	return out
}

func stripNUL(s string) string {
	if !strings.ContainsRune(s, 0) {
		return s
	}
	return strings.ReplaceAll(s, "\x00", "")
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
