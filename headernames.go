package tinyhttp

// requestHeaderNames is the vocabulary accepted by Header.Parse.
//
// Authorisation and Proxy-Authorisation are kept next to the usual
// spelling since some clients send them.
var requestHeaderNames = []string{
	"Accept",
	"Accept-Charset",
	"Accept-Encoding",
	"Accept-Language",
	"Authorisation",
	"Authorization",
	"Cache-Control",
	"Connection",
	"Cookie",
	"Content-Length",
	"Content-Type",
	"Content-Language",
	"Date",
	"Expect",
	"Forwarded",
	"From",
	"Host",
	"If-Match",
	"If-Modified-Since",
	"If-None-Match",
	"If-Range",
	"If-Unmodified-Since",
	"Max-Forwards",
	"Pragma",
	"Proxy-Authorisation",
	"Proxy-Authorization",
	"Range",
	"Referer",
	"TE",
	"Transfer-Encoding",
	"Upgrade",
	"User-Agent",
	"Via",
	"Warning",
}

var requestHeaderKeys = func() map[string]struct{} {
	m := make(map[string]struct{}, len(requestHeaderNames))
	for _, name := range requestHeaderNames {
		m[CanonicalHeaderKey(name)] = struct{}{}
	}
	return m
}()

// IsRequestHeader returns true if name belongs to the recognized request
// header vocabulary. The comparison is case-insensitive.
func IsRequestHeader(name string) bool {
	_, ok := requestHeaderKeys[CanonicalHeaderKey(name)]
	return ok
}
