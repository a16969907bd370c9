package tinyhttp

import "strings"

// parseRequestCookies adds the name=value pairs found in Cookie header
// values to cookies.
//
// Header.Parse has already split the header value on ';', so each value
// holds one pair. The pair is split at its first '='. A value without '='
// is stored under an empty name.
func parseRequestCookies(cookies *Args, values []string) {
	for _, v := range values {
		var s cookieScanner
		s.b = v
		for {
			key, val, ok := s.next()
			if !ok {
				break
			}
			if len(key) > 0 || len(val) > 0 {
				cookies.Add(key, val)
			}
		}
	}
}

type cookieScanner struct {
	b string
}

func (s *cookieScanner) next() (key, val string, ok bool) {
	if len(s.b) == 0 {
		return "", "", false
	}
	pair := s.b
	if n := strings.IndexByte(pair, ';'); n >= 0 {
		pair, s.b = pair[:n], pair[n+1:]
	} else {
		s.b = ""
	}
	k, v, found := strings.Cut(pair, "=")
	if !found {
		return "", decodeCookieArg(k, true), true
	}
	return decodeCookieArg(k, false), decodeCookieArg(v, true), true
}

func decodeCookieArg(src string, skipQuotes bool) string {
	src = strings.Trim(src, " ")
	if skipQuotes && len(src) > 1 && src[0] == '"' && src[len(src)-1] == '"' {
		src = src[1 : len(src)-1]
	}
	return src
}
