package ingest

import "errors"

// ErrClientGone reports a connection that reached end of stream before a
// complete request (headers or declared body) arrived.
var ErrClientGone = errors.New("client closed connection before request was complete")
