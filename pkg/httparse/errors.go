package httparse

import "fmt"

// ParseError reports a malformed request head. Head carries a bounded
// copy of the stream's first bytes so the failure can be logged without
// trusting client input sizes.
type ParseError struct {
	Offset int
	Msg    string
	Head   []byte
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed request at byte %d: %s", e.Offset, e.Msg)
}
