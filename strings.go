package tinyhttp

var (
	defaultServerName = "tinyhttp server"

	defaultTextContentType  = "text/plain"
	defaultBytesContentType = "application/octet-stream"
	charsetUTF8             = "charset=utf-8"
)

var (
	strCRLF     = []byte("\r\n")
	strCRLFCRLF = []byte("\r\n\r\n")
	strColon    = []byte(":")

	strBytes = "bytes"

	strKeepAlive  = "keep-alive"
	strClose      = "close"
	strNoStore    = "no-store"
	strURLEncoded = "application/x-www-form-urlencoded"
)

// Header keys in canonical form. See CanonicalHeaderKey.
const (
	HeaderAccept           = "Accept"
	HeaderAcceptEncoding   = "Accept_Encoding"
	HeaderAcceptRanges     = "Accept_Ranges"
	HeaderAllow            = "Allow"
	HeaderCacheControl     = "Cache_Control"
	HeaderConnection       = "Connection"
	HeaderContentEncoding  = "Content_Encoding"
	HeaderContentLength    = "Content_Length"
	HeaderContentRange     = "Content_Range"
	HeaderContentType      = "Content_Type"
	HeaderCookie           = "Cookie"
	HeaderDate             = "Date"
	HeaderHost             = "Host"
	HeaderLocation         = "Location"
	HeaderRange            = "Range"
	HeaderServer           = "Server"
	HeaderTransferEncoding = "Transfer_Encoding"
	HeaderUserAgent        = "User_Agent"
	HeaderVary             = "Vary"
)
