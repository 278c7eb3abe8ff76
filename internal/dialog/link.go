package dialog

import (
	"net/url"
	"strconv"
	"strings"
)

// BuildBookingLink embeds the stay into base as arrival, departure, adults,
// children and (when set) house query parameters, in that order. Parameters
// already on base are kept unless overridden. An empty or unparsable base
// yields an empty link.
func BuildBookingLink(base string, p Params, roomID string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return ""
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}

	pairs := [][2]string{
		{"arrival", p.ArrivalDate},
		{"departure", p.DepartureDate},
		{"adults", strconv.Itoa(p.Adults)},
		{"children", strconv.Itoa(p.Children)},
	}
	if roomID != "" {
		pairs = append(pairs, [2]string{"house", roomID})
	}

	existing := u.Query()
	for _, kv := range pairs {
		existing.Del(kv[0])
	}

	var b strings.Builder
	if len(existing) > 0 {
		b.WriteString(existing.Encode())
	}
	for _, kv := range pairs {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(kv[0]))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(kv[1]))
	}
	u.RawQuery = b.String()
	return u.String()
}
