package payment

import (
	"crypto/subtle"
	"fmt"
	"net/url"
	"strings"
)

type formField struct{ key, value string }

// orderedForm is an urlencoded body that remembers field order; Paynow
// hashes depend on it and url.Values does not keep it.
type orderedForm []formField

func (f orderedForm) get(key string) string {
	for _, kv := range f {
		if strings.EqualFold(kv.key, key) {
			return kv.value
		}
	}
	return ""
}

func (f orderedForm) values() []string {
	out := make([]string, 0, len(f))
	for _, kv := range f {
		out = append(out, kv.value)
	}
	return out
}

func (f orderedForm) encode() string {
	var b strings.Builder
	for i, kv := range f {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(kv.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(kv.value))
	}
	return b.String()
}

func parseOrderedForm(body string) (orderedForm, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("empty body")
	}
	var out orderedForm
	for _, pair := range strings.Split(body, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			return nil, fmt.Errorf("bad key %q: %w", k, err)
		}
		val, err := url.QueryUnescape(v)
		if err != nil {
			return nil, fmt.Errorf("bad value for %q: %w", key, err)
		}
		out = append(out, formField{strings.ToLower(key), val})
	}
	return out, nil
}

func hashEqual(want, got string) bool {
	return subtle.ConstantTimeCompare([]byte(want), []byte(strings.ToUpper(strings.TrimSpace(got)))) == 1
}
