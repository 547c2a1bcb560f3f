package request

import (
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"

	sonic "github.com/bytedance/sonic"
	"github.com/cespare/xxhash/v2"
	crerr "github.com/cockroachdb/errors"
	"github.com/valyala/bytebufferpool"
)

// canonicalJSON sorts map keys so payloads that are deeply equal encode identically.
var canonicalJSON = sonic.Config{
	SortMapKeys: true,
	UseNumber:   true,
}.Froze()

// splitArgs separates the optional placeholder id from the payload. An integer or
// string first argument is an id; anything else is the payload.
func splitArgs(args []any) (id string, hasID bool, payload any) {
	if len(args) == 0 {
		return "", false, nil
	}

	first := args[0]
	if s, ok := idString(first); ok {
		id, hasID = s, true
		if len(args) > 1 {
			payload = args[1]
		}
		return id, hasID, payload
	}
	return "", false, first
}

func idString(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), true
	default:
		return "", false
	}
}

func blobsOf(payload any) ([]Blob, bool) {
	switch v := payload.(type) {
	case Blob:
		return []Blob{v}, true
	case *Blob:
		if v == nil {
			return nil, false
		}
		return []Blob{*v}, true
	case []Blob:
		return v, len(v) > 0
	case []*Blob:
		out := make([]Blob, 0, len(v))
		for _, b := range v {
			if b != nil {
				out = append(out, *b)
			}
		}
		return out, len(out) > 0
	default:
		return nil, false
	}
}

// encodeRequest builds the wire request and the canonical payload bytes used for
// deduplication.
func encodeRequest(method, resolvedURL string, payload any) (*Request, []byte, error) {
	req := &Request{Method: method, URL: resolvedURL}
	if payload == nil {
		return req, nil, nil
	}

	if blobs, ok := blobsOf(payload); ok {
		body, contentType, err := multipartBody(blobs)
		if err != nil {
			return nil, nil, err
		}
		req.Body = body
		req.ContentType = contentType
		req.Multipart = true
		return req, blobFingerprint(blobs), nil
	}

	if method == http.MethodGet {
		query, err := queryValues(payload)
		if err != nil {
			return nil, nil, err
		}
		req.Query = query
		// Keyed on the wire form so url.Values, maps and structs carrying the same
		// parameters share one call.
		return req, []byte(query.Encode()), nil
	}

	canonical, err := canonicalJSON.Marshal(payload)
	if err != nil {
		return nil, nil, crerr.Wrap(err, "marshal request payload")
	}

	req.Body = canonical
	req.ContentType = "application/json"
	return req, canonical, nil
}

func queryValues(payload any) (url.Values, error) {
	switch v := payload.(type) {
	case url.Values:
		return v, nil
	case map[string]string:
		out := make(url.Values, len(v))
		for key, value := range v {
			out.Set(key, value)
		}
		return out, nil
	}

	canonical, err := canonicalJSON.Marshal(payload)
	if err != nil {
		return nil, crerr.Wrap(err, "marshal request payload")
	}
	var fields map[string]any
	if err := canonicalJSON.Unmarshal(canonical, &fields); err != nil {
		return nil, crerr.Wrapf(err, "GET payload must encode as an object, got %T", payload)
	}

	out := make(url.Values, len(fields))
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		switch value := fields[key].(type) {
		case nil:
			continue
		case []any:
			for _, item := range value {
				s, err := queryScalar(item)
				if err != nil {
					return nil, err
				}
				out.Add(key, s)
			}
		default:
			s, err := queryScalar(value)
			if err != nil {
				return nil, err
			}
			out.Set(key, s)
		}
	}
	return out, nil
}

func queryScalar(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	case nil:
		return "", nil
	default:
		raw, err := canonicalJSON.Marshal(v)
		if err != nil {
			return "", crerr.Wrap(err, "encode nested query value")
		}
		return string(raw), nil
	}
}

func multipartBody(blobs []Blob) ([]byte, string, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	w := multipart.NewWriter(buf)
	for i, blob := range blobs {
		name := strings.TrimSpace(blob.Name)
		if name == "" {
			name = fmt.Sprintf("file-%d", i)
		}
		contentType := blob.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
		header.Set("Content-Type", contentType)
		part, err := w.CreatePart(header)
		if err != nil {
			return nil, "", crerr.Wrap(err, "create multipart part")
		}
		if _, err := part.Write(blob.Data); err != nil {
			return nil, "", crerr.Wrap(err, "write multipart part")
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", crerr.Wrap(err, "close multipart writer")
	}

	body := make([]byte, buf.Len())
	copy(body, buf.B)
	return body, w.FormDataContentType(), nil
}

func blobFingerprint(blobs []Blob) []byte {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	for _, blob := range blobs {
		_, _ = buf.WriteString("blob:")
		_, _ = buf.WriteString(blob.Name)
		_ = buf.WriteByte('|')
		_, _ = buf.WriteString(blob.ContentType)
		_ = buf.WriteByte('|')
		_, _ = buf.WriteString(strconv.FormatUint(xxhash.Sum64(blob.Data), 16))
		_ = buf.WriteByte('|')
		_, _ = buf.WriteString(strconv.Itoa(len(blob.Data)))
		_ = buf.WriteByte(';')
	}
	return append([]byte(nil), buf.B...)
}

// dedupKey identifies a call by method, resolved URL and canonical payload.
func dedupKey(method, resolvedURL string, canonical []byte) string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	_, _ = buf.WriteString(method)
	_ = buf.WriteByte(' ')
	_, _ = buf.WriteString(resolvedURL)
	_ = buf.WriteByte('\n')
	_, _ = buf.Write(canonical)
	return buf.String()
}
