package server

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/valyala/fasthttp"

	"inletd/pkg/dispatch"
)

// writeResponse serializes one HTTP/1.1 response. Every response closes
// the connection, so Content-Length and Connection are always set here
// and never taken from the handler.
func writeResponse(w io.Writer, resp dispatch.Response, software string) error {
	status := resp.Status
	if status == 0 {
		status = fasthttp.StatusOK
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "HTTP/1.1 %d %s\r\n", status, fasthttp.StatusMessage(status))
	fmt.Fprintf(bw, "Server: %s\r\n", software)
	fmt.Fprintf(bw, "Date: %s\r\n", time.Now().UTC().Format(http.TimeFormat))
	fmt.Fprintf(bw, "Content-Length: %d\r\n", len(resp.Body))
	for k, v := range resp.Header {
		if k == "Content-Length" || k == "Connection" || k == "Date" || k == "Server" {
			continue
		}
		fmt.Fprintf(bw, "%s: %s\r\n", k, v)
	}
	bw.WriteString("Connection: close\r\n\r\n")
	bw.Write(resp.Body)
	return bw.Flush()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
