package cache

import (
	"sort"
	"strconv"
	"strings"

	"github.com/JacquesGariepy/service-failover/internal/core/domain"
)

// Fingerprint builds the cache key for req: method ":" endpoint ":"
// serialize(params) ":" serialize(body), with params/body serialised as
// sorted key=value pairs so that identical logical requests always produce
// the same key regardless of map iteration order.
func Fingerprint(req domain.Request) string {
	var b strings.Builder
	b.WriteString(string(req.Method))
	b.WriteByte(':')
	b.WriteString(req.Endpoint)
	b.WriteByte(':')
	b.WriteString(serialiseStringMap(req.Params))
	b.WriteByte(':')
	b.WriteString(serialiseAnyMap(req.Body))
	return b.String()
}

func serialiseStringMap(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(m[k])
	}
	return b.String()
}

func serialiseAnyMap(m map[string]interface{}) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(serialiseValue(m[k]))
	}
	return b.String()
}

func serialiseValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case nil:
		return "null"
	default:
		return "?"
	}
}
