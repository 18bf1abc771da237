// internal/form/payload.go
//
// Payload decoding.
//
// Context
//   Browsers post `application/x-www-form-urlencoded`, webhook relays post
//   JSON (sometimes wrapped as `{payload:{data:{…}}}` or `{data:{…}}`), and
//   some relays omit or mis-declare the content type.  Decode folds all of
//   these into one Payload keyed by submitted field name.
//
// Workflow
//   •  DecodeBody reverses base64 transport encoding when flagged.
//   •  Decode branches on the media type:
//        urlencoded – last value per key wins, except `key[]`, whose values
//                     are collected in order under `key`.
//        JSON       – must be an object; wrapper shapes are unwrapped, and
//                     `key[]` members fold into `key` as in urlencoded.
//        other      – a JSON parse is attempted as a last resort.
//   •  Anything that is not a JSON object after the JSON attempt returns
//      ErrUnsupported.
//
//------------------------------------------------------------------------------

package form

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime"
	"net/url"
	"strings"
)

// ErrUnsupported means the body could not be read as form data or a JSON
// object.
var ErrUnsupported = errors.New("unsupported content type")

const (
	mediaForm = "application/x-www-form-urlencoded"
	mediaJSON = "application/json"
)

// Payload maps submitted keys to string, []string, bool, json.Number, nil,
// or nested JSON values.
type Payload map[string]any

// DecodeBody returns body as bytes, base64-decoding it when encoded is set.
func DecodeBody(body string, encoded bool) ([]byte, error) {
	if !encoded {
		return []byte(body), nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(body))
	if err != nil {
		return nil, errors.Join(ErrUnsupported, err)
	}
	return raw, nil
}

// Decode parses body according to contentType.
func Decode(contentType string, body []byte) (Payload, error) {
	switch mediaType(contentType) {
	case mediaForm:
		return decodeForm(body), nil
	default:
		// JSON proper, JSON under a vendor type, or a mis-declared body.
		return decodeJSON(body)
	}
}

func mediaType(ct string) string {
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(strings.SplitN(ct, ";", 2)[0]))
	}
	return mt
}

func decodeForm(body []byte) Payload {
	// ParseQuery keeps every well-formed pair even when it reports an error
	// for a malformed one.
	vals, _ := url.ParseQuery(string(body))

	p := make(Payload, len(vals))
	var lists []string
	for k, vs := range vals {
		if strings.HasSuffix(k, "[]") {
			lists = append(lists, k)
			continue
		}
		p[k] = vs[len(vs)-1]
	}
	for _, k := range lists {
		if vs := vals[k]; len(vs) > 0 {
			p[strings.TrimSuffix(k, "[]")] = vs
		}
	}
	return p
}

func decodeJSON(body []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil || doc == nil {
		return nil, ErrUnsupported
	}
	if dec.More() {
		return nil, ErrUnsupported
	}
	return foldLists(unwrap(doc)), nil
}

// foldLists moves `key[]` members under `key`, overriding a plain `key`,
// so JSON relays that forward browser field names decode like a form post.
func foldLists(doc map[string]any) Payload {
	p := make(Payload, len(doc))
	var lists []string
	for k, v := range doc {
		if strings.HasSuffix(k, "[]") {
			lists = append(lists, k)
			continue
		}
		p[k] = v
	}
	for _, k := range lists {
		v := doc[k]
		switch t := v.(type) {
		case []any:
			if len(t) == 0 {
				continue
			}
		case nil:
			continue
		default:
			v = []any{t}
		}
		p[strings.TrimSuffix(k, "[]")] = v
	}
	return p
}

// unwrap returns payload.data, else data, else doc.
func unwrap(doc map[string]any) map[string]any {
	if outer, ok := doc["payload"].(map[string]any); ok {
		if inner, ok := outer["data"].(map[string]any); ok {
			return inner
		}
	}
	if inner, ok := doc["data"].(map[string]any); ok {
		return inner
	}
	return doc
}

// -----------------------------------------------------------------------------
// Value coercion
// -----------------------------------------------------------------------------

var truthyTokens = map[string]bool{"true": true, "1": true, "yes": true, "on": true}

// Truthy reports whether v is boolean true or one of the tokens true, 1,
// yes, or on (case-insensitive).  Lists are truthy when any element is.
func Truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return truthyTokens[strings.ToLower(strings.TrimSpace(t))]
	case json.Number:
		return t.String() == "1"
	case []string:
		for _, s := range t {
			if Truthy(s) {
				return true
			}
		}
	case []any:
		for _, e := range t {
			if Truthy(e) {
				return true
			}
		}
	}
	return false
}

// filled reports whether a honeypot value would count as entered.
func filled(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case json.Number:
		f, err := t.Float64()
		return err != nil || f != 0
	case []string:
		return len(t) > 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

func (p Payload) text(k string) string {
	switch t := p[k].(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	case []string, []any:
		return strings.Join(p.list(k), ", ")
	}
	return ""
}

func (p Payload) list(k string) []string {
	var raw []string
	switch t := p[k].(type) {
	case []string:
		raw = t
	case []any:
		for _, e := range t {
			switch s := e.(type) {
			case string:
				raw = append(raw, s)
			case json.Number:
				raw = append(raw, s.String())
			}
		}
	default:
		if s := p.text(k); s != "" {
			raw = []string{s}
		}
	}

	out := raw[:0:0]
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
