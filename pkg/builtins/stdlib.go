package builtins

import (
	"bytes"
	"compress/gzip"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/atl-lang/atlas-sub003/pkg/diag"
	"github.com/atl-lang/atlas-sub003/pkg/value"
)

// ioCapable and netCapable mirror pkg/runtime's Capability without importing
// it (pkg/builtins must stay importable from both engines without creating
// a cycle back through pkg/runtime). Any host capability value that embeds
// or implements RequireIO/RequireNetwork satisfies these by promotion — the
// same pattern Caller already uses for the higher-order intrinsics.
type ioCapable interface{ RequireIO() error }
type netCapable interface{ RequireNetwork() error }

func requireIO(cap any) error {
	c, ok := cap.(ioCapable)
	if !ok {
		return sandboxErr("file IO is not available in this host context")
	}
	return c.RequireIO()
}

func requireNetwork(cap any) error {
	c, ok := cap.(netCapable)
	if !ok {
		return sandboxErr("network access is not available in this host context")
	}
	return c.RequireNetwork()
}

func sandboxErr(msg string) error {
	return diag.New(diag.SandboxDenied, msg, diag.Span{})
}

func stringArg(args []value.Value, idx int, who string) (string, error) {
	s, ok := args[idx].(value.String)
	if !ok {
		return "", typeErr("%s: expected String argument %d, got %s", who, idx, value.TypeName(args[idx]))
	}
	return string(s), nil
}

func numberArg(args []value.Value, idx int, who string) (float64, error) {
	n, ok := args[idx].(value.Number)
	if !ok {
		return 0, typeErr("%s: expected Number argument %d, got %s", who, idx, value.TypeName(args[idx]))
	}
	return float64(n), nil
}

// stdlibBuiltins registers the capability-gated and encoding/hash/date
// natives. Every native here takes value.Value arguments and returns
// value.Value, and the
// two natives that touch the outside world (fileRead/fileWrite family,
// httpGet/httpPost) check a Capability before doing anything observable —
// allow_io and allow_network are independent checks, never one combined
// switch.
func stdlibBuiltins() []*value.NativeFn {
	return []*value.NativeFn{
		native("sha256", 1, builtinSHA256),
		native("sha512", 1, builtinSHA512),
		native("md5", 1, builtinMD5),
		native("base64Encode", 1, builtinBase64Encode),
		native("base64Decode", 1, builtinBase64Decode),
		native("gzipCompress", 1, builtinGzipCompress),
		native("gzipDecompress", 1, builtinGzipDecompress),
		native("regexMatch", 2, builtinRegexMatch),
		native("regexFindAll", 2, builtinRegexFindAll),
		native("regexReplace", 3, builtinRegexReplace),
		native("randomInt", 2, builtinRandomInt),
		native("randomFloat", 0, builtinRandomFloat),
		native("dateNow", 0, builtinDateNow),
		native("dateFormat", 2, builtinDateFormat),
		native("dateParse", 2, builtinDateParse),
		native("jsonParse", 1, builtinJSONParse),
		native("jsonGenerate", 1, builtinJSONGenerate),
		native("fileRead", 1, builtinFileRead),
		native("fileWrite", 2, builtinFileWrite),
		native("fileExists", 1, builtinFileExists),
		native("fileDelete", 1, builtinFileDelete),
		native("httpGet", 1, builtinHTTPGet),
		native("httpPost", 2, builtinHTTPPost),
	}
}

func builtinSHA256(cap any, args []value.Value) (value.Value, error) {
	s, err := stringArg(args, 0, "sha256")
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256([]byte(s))
	return value.NewString(fmt.Sprintf("%x", sum)), nil
}

func builtinSHA512(cap any, args []value.Value) (value.Value, error) {
	s, err := stringArg(args, 0, "sha512")
	if err != nil {
		return nil, err
	}
	sum := sha512.Sum512([]byte(s))
	return value.NewString(fmt.Sprintf("%x", sum)), nil
}

func builtinMD5(cap any, args []value.Value) (value.Value, error) {
	s, err := stringArg(args, 0, "md5")
	if err != nil {
		return nil, err
	}
	sum := md5.Sum([]byte(s))
	return value.NewString(fmt.Sprintf("%x", sum)), nil
}

func builtinBase64Encode(cap any, args []value.Value) (value.Value, error) {
	s, err := stringArg(args, 0, "base64Encode")
	if err != nil {
		return nil, err
	}
	return value.NewString(base64.StdEncoding.EncodeToString([]byte(s))), nil
}

func builtinBase64Decode(cap any, args []value.Value) (value.Value, error) {
	s, err := stringArg(args, 0, "base64Decode")
	if err != nil {
		return nil, err
	}
	decoded, derr := base64.StdEncoding.DecodeString(s)
	if derr != nil {
		return nil, typeErr("base64Decode: %v", derr)
	}
	return value.NewString(string(decoded)), nil
}

func builtinGzipCompress(cap any, args []value.Value) (value.Value, error) {
	s, err := stringArg(args, 0, "gzipCompress")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, werr := w.Write([]byte(s)); werr != nil {
		return nil, typeErr("gzipCompress: %v", werr)
	}
	if cerr := w.Close(); cerr != nil {
		return nil, typeErr("gzipCompress: %v", cerr)
	}
	return value.NewString(base64.StdEncoding.EncodeToString(buf.Bytes())), nil
}

func builtinGzipDecompress(cap any, args []value.Value) (value.Value, error) {
	s, err := stringArg(args, 0, "gzipDecompress")
	if err != nil {
		return nil, err
	}
	decoded, derr := base64.StdEncoding.DecodeString(s)
	if derr != nil {
		return nil, typeErr("gzipDecompress: %v", derr)
	}
	r, rerr := gzip.NewReader(bytes.NewReader(decoded))
	if rerr != nil {
		return nil, typeErr("gzipDecompress: %v", rerr)
	}
	defer r.Close()
	content, cerr := io.ReadAll(r)
	if cerr != nil {
		return nil, typeErr("gzipDecompress: %v", cerr)
	}
	return value.NewString(string(content)), nil
}

func builtinRegexMatch(cap any, args []value.Value) (value.Value, error) {
	pattern, err := stringArg(args, 0, "regexMatch")
	if err != nil {
		return nil, err
	}
	text, err := stringArg(args, 1, "regexMatch")
	if err != nil {
		return nil, err
	}
	matched, rerr := regexp.MatchString(pattern, text)
	if rerr != nil {
		return nil, typeErr("regexMatch: invalid pattern: %v", rerr)
	}
	return value.Bool(matched), nil
}

func builtinRegexFindAll(cap any, args []value.Value) (value.Value, error) {
	pattern, err := stringArg(args, 0, "regexFindAll")
	if err != nil {
		return nil, err
	}
	text, err := stringArg(args, 1, "regexFindAll")
	if err != nil {
		return nil, err
	}
	re, rerr := regexp.Compile(pattern)
	if rerr != nil {
		return nil, typeErr("regexFindAll: invalid pattern: %v", rerr)
	}
	matches := re.FindAllString(text, -1)
	items := make([]value.Value, len(matches))
	for i, m := range matches {
		items[i] = value.NewString(m)
	}
	return value.NewArray(items), nil
}

func builtinRegexReplace(cap any, args []value.Value) (value.Value, error) {
	pattern, err := stringArg(args, 0, "regexReplace")
	if err != nil {
		return nil, err
	}
	text, err := stringArg(args, 1, "regexReplace")
	if err != nil {
		return nil, err
	}
	replacement, err := stringArg(args, 2, "regexReplace")
	if err != nil {
		return nil, err
	}
	re, rerr := regexp.Compile(pattern)
	if rerr != nil {
		return nil, typeErr("regexReplace: invalid pattern: %v", rerr)
	}
	return value.NewString(re.ReplaceAllString(text, replacement)), nil
}

func builtinRandomInt(cap any, args []value.Value) (value.Value, error) {
	lo, err := numberArg(args, 0, "randomInt")
	if err != nil {
		return nil, err
	}
	hi, err := numberArg(args, 1, "randomInt")
	if err != nil {
		return nil, err
	}
	min, max := int64(lo), int64(hi)
	if min > max {
		return nil, typeErr("randomInt: min must be <= max")
	}
	n, rerr := rand.Int(rand.Reader, big.NewInt(max-min+1))
	if rerr != nil {
		return nil, typeErr("randomInt: %v", rerr)
	}
	return value.Number(n.Int64() + min), nil
}

func builtinRandomFloat(cap any, args []value.Value) (value.Value, error) {
	buf := make([]byte, 8)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return nil, typeErr("randomFloat: %v", err)
	}
	n := uint64(buf[0])<<56 | uint64(buf[1])<<48 | uint64(buf[2])<<40 | uint64(buf[3])<<32 |
		uint64(buf[4])<<24 | uint64(buf[5])<<16 | uint64(buf[6])<<8 | uint64(buf[7])
	return value.Number(float64(n>>11) / float64(1<<53)), nil
}

func builtinDateNow(cap any, args []value.Value) (value.Value, error) {
	return value.Number(time.Now().Unix()), nil
}

func builtinDateFormat(cap any, args []value.Value) (value.Value, error) {
	ts, err := numberArg(args, 0, "dateFormat")
	if err != nil {
		return nil, err
	}
	format, err := stringArg(args, 1, "dateFormat")
	if err != nil {
		return nil, err
	}
	t := time.Unix(int64(ts), 0).UTC()
	switch format {
	case "iso8601", "ISO8601", "rfc3339", "RFC3339":
		return value.NewString(t.Format(time.RFC3339)), nil
	case "date":
		return value.NewString(t.Format("2006-01-02")), nil
	case "time":
		return value.NewString(t.Format("15:04:05")), nil
	case "datetime":
		return value.NewString(t.Format("2006-01-02 15:04:05")), nil
	default:
		return value.NewString(t.Format(format)), nil
	}
}

func builtinDateParse(cap any, args []value.Value) (value.Value, error) {
	dateStr, err := stringArg(args, 0, "dateParse")
	if err != nil {
		return nil, err
	}
	format, err := stringArg(args, 1, "dateParse")
	if err != nil {
		return nil, err
	}
	var t time.Time
	var perr error
	switch format {
	case "iso8601", "ISO8601", "rfc3339", "RFC3339":
		t, perr = time.Parse(time.RFC3339, dateStr)
	case "date":
		t, perr = time.Parse("2006-01-02", dateStr)
	case "time":
		t, perr = time.Parse("15:04:05", dateStr)
	case "datetime":
		t, perr = time.Parse("2006-01-02 15:04:05", dateStr)
	default:
		t, perr = time.Parse(format, dateStr)
	}
	if perr != nil {
		return nil, typeErr("dateParse: %v", perr)
	}
	return value.Number(t.Unix()), nil
}

// jsonToValue converts a decoded encoding/json tree into Atlas values.
func jsonToValue(v interface{}) value.Value {
	switch t := v.(type) {
	case nil:
		return value.TheNull
	case bool:
		return value.Bool(t)
	case float64:
		return value.Number(t)
	case string:
		return value.NewString(t)
	case []interface{}:
		items := make([]value.Value, len(t))
		for i, elem := range t {
			items[i] = jsonToValue(elem)
		}
		return value.NewArray(items)
	case map[string]interface{}:
		m := value.NewHashMap()
		for k, val := range t {
			m.Put(value.NewString(k), jsonToValue(val))
		}
		return m
	default:
		return value.TheNull
	}
}

// valueToJSON converts an Atlas value into a JSON-marshalable Go value.
func valueToJSON(v value.Value) (interface{}, error) {
	switch t := v.(type) {
	case value.Null:
		return nil, nil
	case value.Bool:
		return bool(t), nil
	case value.Number:
		return float64(t), nil
	case value.String:
		return string(t), nil
	case value.Array:
		items := t.Items()
		out := make([]interface{}, len(items))
		for i, elem := range items {
			j, err := valueToJSON(elem)
			if err != nil {
				return nil, err
			}
			out[i] = j
		}
		return out, nil
	case value.HashMap:
		out := make(map[string]interface{})
		for _, entry := range t.Entries() {
			key, ok := entry.Key.(value.String)
			if !ok {
				return nil, typeErr("jsonGenerate: map keys must be strings, got %s", value.TypeName(entry.Key))
			}
			j, err := valueToJSON(entry.Val)
			if err != nil {
				return nil, err
			}
			out[string(key)] = j
		}
		return out, nil
	default:
		return nil, typeErr("jsonGenerate: cannot encode %s", value.TypeName(v))
	}
}

func builtinJSONParse(cap any, args []value.Value) (value.Value, error) {
	s, err := stringArg(args, 0, "jsonParse")
	if err != nil {
		return nil, err
	}
	var decoded interface{}
	if jerr := json.Unmarshal([]byte(s), &decoded); jerr != nil {
		return nil, typeErr("jsonParse: %v", jerr)
	}
	return jsonToValue(decoded), nil
}

func builtinJSONGenerate(cap any, args []value.Value) (value.Value, error) {
	encodable, err := valueToJSON(args[0])
	if err != nil {
		return nil, err
	}
	data, jerr := json.Marshal(encodable)
	if jerr != nil {
		return nil, typeErr("jsonGenerate: %v", jerr)
	}
	return value.NewString(string(data)), nil
}

func builtinFileRead(cap any, args []value.Value) (value.Value, error) {
	if err := requireIO(cap); err != nil {
		return nil, err
	}
	path, err := stringArg(args, 0, "fileRead")
	if err != nil {
		return nil, err
	}
	data, rerr := os.ReadFile(path)
	if rerr != nil {
		return nil, typeErr("fileRead: %v", rerr)
	}
	return value.NewString(string(data)), nil
}

func builtinFileWrite(cap any, args []value.Value) (value.Value, error) {
	if err := requireIO(cap); err != nil {
		return nil, err
	}
	path, err := stringArg(args, 0, "fileWrite")
	if err != nil {
		return nil, err
	}
	content, err := stringArg(args, 1, "fileWrite")
	if err != nil {
		return nil, err
	}
	if werr := os.WriteFile(path, []byte(content), 0644); werr != nil {
		return nil, typeErr("fileWrite: %v", werr)
	}
	return value.TheNull, nil
}

func builtinFileExists(cap any, args []value.Value) (value.Value, error) {
	if err := requireIO(cap); err != nil {
		return nil, err
	}
	path, err := stringArg(args, 0, "fileExists")
	if err != nil {
		return nil, err
	}
	_, serr := os.Stat(path)
	return value.Bool(serr == nil), nil
}

func builtinFileDelete(cap any, args []value.Value) (value.Value, error) {
	if err := requireIO(cap); err != nil {
		return nil, err
	}
	path, err := stringArg(args, 0, "fileDelete")
	if err != nil {
		return nil, err
	}
	if rerr := os.Remove(path); rerr != nil {
		return nil, typeErr("fileDelete: %v", rerr)
	}
	return value.TheNull, nil
}

func builtinHTTPGet(cap any, args []value.Value) (value.Value, error) {
	if err := requireNetwork(cap); err != nil {
		return nil, err
	}
	url, err := stringArg(args, 0, "httpGet")
	if err != nil {
		return nil, err
	}
	resp, gerr := http.Get(url)
	if gerr != nil {
		return nil, typeErr("httpGet: %v", gerr)
	}
	defer resp.Body.Close()
	body, rerr := io.ReadAll(resp.Body)
	if rerr != nil {
		return nil, typeErr("httpGet: %v", rerr)
	}
	return value.NewString(string(body)), nil
}

func builtinHTTPPost(cap any, args []value.Value) (value.Value, error) {
	if err := requireNetwork(cap); err != nil {
		return nil, err
	}
	url, err := stringArg(args, 0, "httpPost")
	if err != nil {
		return nil, err
	}
	body, err := stringArg(args, 1, "httpPost")
	if err != nil {
		return nil, err
	}
	resp, perr := http.Post(url, "text/plain", strings.NewReader(body))
	if perr != nil {
		return nil, typeErr("httpPost: %v", perr)
	}
	defer resp.Body.Close()
	respBody, rerr := io.ReadAll(resp.Body)
	if rerr != nil {
		return nil, typeErr("httpPost: %v", rerr)
	}
	return value.NewString(string(respBody)), nil
}
