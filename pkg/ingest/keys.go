package ingest

// Request-context map key dictionary.
//
// notation:
// - CGI meta-variables keep their classic uppercase names
// - entries owned by the server runtime live under the "inlet." prefix
// - client headers are stored as HTTP_<NAME> with '-' mapped to '_',
//   except CONTENT_TYPE and CONTENT_LENGTH which stay unprefixed
const (
	KeyRemoteAddr     = "REMOTE_ADDR"
	KeyRequestMethod  = "REQUEST_METHOD"
	KeyRequestPath    = "REQUEST_PATH"
	KeyPathInfo       = "PATH_INFO"
	KeyQueryString    = "QUERY_STRING"
	KeyRequestURI     = "REQUEST_URI"
	KeyServerProtocol = "SERVER_PROTOCOL"
	KeyContentLength  = "CONTENT_LENGTH" // int64, non-negative; malformed client values are 0
	KeyContentType    = "CONTENT_TYPE"
	KeyScriptName     = "SCRIPT_NAME"
	KeyServerSoftware = "SERVER_SOFTWARE"

	// HeaderPrefix is prepended to all other client header names.
	HeaderPrefix = "HTTP_"

	KeyInput        = "inlet.input"  // Body handle, rewound, ready for sequential reads
	KeyErrors       = "inlet.errors" // io.Writer error sink for the application
	KeyMultithread  = "inlet.multithread"
	KeyMultiprocess = "inlet.multiprocess"
	KeyRunOnce      = "inlet.run_once"
	KeyVersion      = "inlet.version"

	// KeyBufferedBody carries body bytes captured alongside the header
	// block. The materializer removes it before the map leaves the unit;
	// it never appears in a finished map.
	KeyBufferedBody = "inlet.buffered_body"
)

// EnvVersion is the dispatch-protocol version marker stored under KeyVersion.
var EnvVersion = [2]int{1, 0}

// RemoteAddrFallback is recorded when the transport exposes no usable peer
// address (unix sockets, in-memory test pipes).
const RemoteAddrFallback = "127.0.0.1"
