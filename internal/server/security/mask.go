package security

import (
	"encoding"
	"encoding/json"
	"fmt"
	"net/mail"
	"net/netip"
	"reflect"
	"strings"
	"unicode"
)

// MaxUserAgentLength is the number of runes kept from a user agent.
const MaxUserAgentLength = 200

var secretKeyMarkers = []string{"password", "token", "secret"}

// MaskEmail keeps the first character of the local part and the domain:
// "john@example.com" becomes "j***@example.com".
func MaskEmail(email string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return ""
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "***"
	}
	first := []rune(email[:at])[0]
	return string(first) + "***" + email[at:]
}

// MaskIP keeps the first two octets of an IPv4 address or the first two
// groups of an IPv6 address. Ports are dropped. Anything unparseable is
// replaced entirely.
func MaskIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return ""
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		ap, perr := netip.ParseAddrPort(ip)
		if perr != nil {
			return "x.x.x.x"
		}
		addr = ap.Addr()
	}
	addr = addr.Unmap()
	if addr.Is4() {
		b := addr.As4()
		return fmt.Sprintf("%d.%d.x.x", b[0], b[1])
	}
	b := addr.As16()
	return fmt.Sprintf("%x:%x:x:x:x:x:x:x", uint16(b[0])<<8|uint16(b[1]), uint16(b[2])<<8|uint16(b[3]))
}

// TruncateUserAgent strips control characters and cuts the result to
// MaxUserAgentLength runes.
func TruncateUserAgent(ua string) string {
	var b strings.Builder
	n := 0
	for _, r := range ua {
		if unicode.IsControl(r) {
			continue
		}
		if n == MaxUserAgentLength {
			break
		}
		b.WriteRune(r)
		n++
	}
	return strings.TrimSpace(b.String())
}

// SanitizeDetails returns a copy of details without any key that names a
// secret, at any depth. Typed maps, slices and structs are rebuilt as
// map[string]any and []any on the way. Email-looking strings are masked, as
// are values of keys that carry an IP.
func SanitizeDetails(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}
	out := make(map[string]any, len(details))
	for k, v := range details {
		if isSecretKey(k) {
			continue
		}
		if isIPKey(k) {
			if s, ok := v.(string); ok {
				out[k] = MaskIP(s)
				continue
			}
		}
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return SanitizeDetails(val)
	case []any:
		items := make([]any, len(val))
		for i, item := range val {
			items[i] = sanitizeValue(item)
		}
		return items
	case []string:
		items := make([]string, len(val))
		for i, item := range val {
			items[i] = sanitizeString(item)
		}
		return items
	case string:
		return sanitizeString(val)
	case error:
		return sanitizeString(val.Error())
	case nil, bool, int, int64, float64:
		return v
	default:
		return sanitizeReflect(v)
	}
}

func sanitizeReflect(v any) any {
	if _, ok := v.(json.Marshaler); ok {
		return sanitizeJSON(v)
	}
	if _, ok := v.(encoding.TextMarshaler); ok {
		return v
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return sanitizeJSON(v)
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return SanitizeDetails(m)
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return v
		}
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = sanitizeValue(rv.Index(i).Interface())
		}
		return items
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return sanitizeValue(rv.Elem().Interface())
	case reflect.Struct:
		return sanitizeJSON(v)
	default:
		return v
	}
}

// sanitizeJSON filters v through its JSON encoding. A value that encodes to
// a scalar is kept as it is; one that cannot be encoded is replaced by its
// type name.
func sanitizeJSON(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("<%T>", v)
	}
	var decoded any
	if err := json.Unmarshal(b, &decoded); err != nil {
		return fmt.Sprintf("<%T>", v)
	}
	switch decoded.(type) {
	case map[string]any, []any:
		return sanitizeValue(decoded)
	default:
		return v
	}
}

func sanitizeString(s string) string {
	if strings.Contains(s, "@") {
		if addr, err := mail.ParseAddress(s); err == nil && addr.Address == strings.TrimSpace(s) {
			return MaskEmail(s)
		}
	}
	return s
}

func isSecretKey(k string) bool {
	lk := strings.ToLower(k)
	for _, m := range secretKeyMarkers {
		if strings.Contains(lk, m) {
			return true
		}
	}
	return false
}

func isIPKey(k string) bool {
	lk := strings.ToLower(k)
	return lk == "ip" || lk == "ip_address" || lk == "remote_addr"
}
