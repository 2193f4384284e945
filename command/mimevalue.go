// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package command

import (
	"sort"
	"strings"
)

// MIMEValue is a header value of the form "value;key=v;key=v".
//
// Address valued headers carry the endpoint id in an "epid" attribute rather
// than in the address string itself. An inline "via=" segment is part of the
// address, not an attribute, and is kept in the value.
type MIMEValue struct {
	Value string
	Attrs map[string]string
}

// ParseMIMEValue splits a header value into its value and attribute map.
func ParseMIMEValue(s string) MIMEValue {
	parts := strings.Split(s, ";")
	v := MIMEValue{Value: parts[0]}
	for _, part := range parts[1:] {
		if strings.HasPrefix(part, "via=") {
			v.Value += ";" + part
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		if v.Attrs == nil {
			v.Attrs = make(map[string]string)
		}
		v.Attrs[kv[0]] = kv[1]
	}
	return v
}

// Attr returns the named attribute or the empty string.
func (v MIMEValue) Attr(key string) string {
	return v.Attrs[key]
}

// WithAttr returns a copy of the value with the attribute set.
func (v MIMEValue) WithAttr(key, value string) MIMEValue {
	attrs := make(map[string]string, len(v.Attrs)+1)
	for k, a := range v.Attrs {
		attrs[k] = a
	}
	attrs[key] = value
	v.Attrs = attrs
	return v
}

// String serializes the value. Attributes are emitted in sorted key order so
// that serialization is deterministic.
func (v MIMEValue) String() string {
	if len(v.Attrs) == 0 {
		return v.Value
	}
	keys := make([]string, 0, len(v.Attrs))
	for k := range v.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(v.Value)
	for _, k := range keys {
		b.WriteByte(';')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v.Attrs[k])
	}
	return b.String()
}
