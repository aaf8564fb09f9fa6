package replication

import "errors"

// Transport errors. A failed peer is logged and skipped; nothing is retried.
var (
	ErrPeerUnreachable = errors.New("peer unreachable")
	ErrPeerIO          = errors.New("peer connection failed after connect")
	ErrUnknownPolicy   = errors.New("unknown replication policy")
)
