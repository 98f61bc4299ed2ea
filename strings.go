package rotorhttp

var (
	strCRLF     = []byte("\r\n")
	strCRLFCRLF = []byte("\r\n\r\n")
	strColon    = []byte(":")

	strGet  = []byte("GET")
	strHead = []byte("HEAD")

	strContentLength    = []byte("Content-Length")
	strTransferEncoding = []byte("Transfer-Encoding")
	strConnection       = []byte("Connection")
	strExpect           = []byte("Expect")
	strHost             = []byte("Host")

	strChunked     = []byte("chunked")
	strClose       = []byte("close")
	strKeepAlive   = []byte("keep-alive")
	str100Continue = []byte("100-continue")
	strHTTP10      = []byte("HTTP/1.0")
	strHTTP11      = []byte("HTTP/1.1")
)
