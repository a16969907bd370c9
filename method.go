package tinyhttp

// Method is an HTTP request method.
type Method uint8

// Request methods accepted on the request line.
const (
	MethodUnknown Method = iota
	MethodGet
	MethodHead
	MethodPost
	MethodPut
	MethodDelete
	MethodConnect
	MethodOptions
	MethodTrace
	MethodPatch

	methodCount
)

var methodNames = [methodCount]string{
	MethodUnknown: "",
	MethodGet:     "GET",
	MethodHead:    "HEAD",
	MethodPost:    "POST",
	MethodPut:     "PUT",
	MethodDelete:  "DELETE",
	MethodConnect: "CONNECT",
	MethodOptions: "OPTIONS",
	MethodTrace:   "TRACE",
	MethodPatch:   "PATCH",
}

// ParseMethod returns the Method for the given request-line token.
//
// Method names are case-sensitive. MethodUnknown is returned for anything
// outside the vocabulary.
func ParseMethod(s string) Method {
	for m := MethodGet; m < methodCount; m++ {
		if methodNames[m] == s {
			return m
		}
	}
	return MethodUnknown
}

func (m Method) String() string {
	if m >= methodCount {
		return ""
	}
	return methodNames[m]
}

// Supported protocol versions.
const (
	ProtocolHTTP10 = "HTTP/1.0"
	ProtocolHTTP11 = "HTTP/1.1"
)

func isSupportedProtocol(s string) bool {
	return s == ProtocolHTTP10 || s == ProtocolHTTP11
}
