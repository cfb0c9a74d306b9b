package shard

// Error is one of the Shard Manager's closed error kinds.
type Error string

const (
	OK          Error = ""
	Timeout     Error = "TIMEOUT"
	NotLeader   Error = "NOT_LEADER"
	InvalidArg  Error = "INVALID_ARG"
	UnknownPG   Error = "UNKNOWN_PG"
	UnknownShard Error = "UNKNOWN_SHARD"
)

func (e Error) Error() string { return string(e) }
