package dispatch

import (
	"crypto/sha256"
	"encoding/hex"
	"io"

	"inletd/pkg/ingest"
)

// Echo is the built-in handler. It reads the whole body and answers
// with a digest of what arrived, which makes the server usable as an
// ingestion probe: what the client sent is exactly what is reported.
func Echo() Handler {
	return HandlerFunc(func(env map[string]any) Response {
		sum := sha256.New()
		var bodyBytes int64
		spooled := false
		if body, ok := BodyOf(env); ok {
			n, err := io.Copy(sum, body)
			if err != nil {
				return Text(500, "body read failed\n")
			}
			bodyBytes = n
			spooled = body.Spooled()
		}

		declared, _ := env[ingest.KeyContentLength].(int64)
		return JSON(200, map[string]any{
			"method":         env[ingest.KeyRequestMethod],
			"uri":            env[ingest.KeyRequestURI],
			"protocol":       env[ingest.KeyServerProtocol],
			"remote_addr":    env[ingest.KeyRemoteAddr],
			"content_length": declared,
			"body_bytes":     bodyBytes,
			"body_sha256":    hex.EncodeToString(sum.Sum(nil)),
			"body_spooled":   spooled,
			"served_by":      env[ingest.KeyServerSoftware],
		})
	})
}
