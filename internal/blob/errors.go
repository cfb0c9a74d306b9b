package blob

// Error is one of the Blob Engine's closed error kinds.
type Error string

const (
	OK          Error = ""
	UnknownBlob Error = "UNKNOWN_BLOB"
	InvalidArg  Error = "INVALID_ARG"
	SealedShard Error = "SEALED_SHARD"
	CRCMismatch Error = "CRC_MISMATCH"
	NoSpaceLeft Error = "NO_SPACE_LEFT"
	Timeout     Error = "TIMEOUT"
	NotLeader   Error = "NOT_LEADER"
)

func (e Error) Error() string { return string(e) }
