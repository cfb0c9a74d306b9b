package pg

// Error is one of the PG error kinds the PG Manager's public operations
// can surface. It forms a closed set mirrored from the replication
// service's own error codes.
type Error string

const (
	OK               Error = ""
	InvalidArg       Error = "INVALID_ARG"
	UnknownPG        Error = "UNKNOWN_PG"
	UnknownPeer      Error = "UNKNOWN_PEER"
	NotLeader        Error = "NOT_LEADER"
	Timeout          Error = "TIMEOUT"
	NoSpaceLeft      Error = "NO_SPACE_LEFT"
	DriveWriteError  Error = "DRIVE_WRITE_ERROR"
	RetryRequest     Error = "RETRY_REQUEST"
	CRCMismatch      Error = "CRC_MISMATCH"
	Unknown          Error = "UNKNOWN"
)

func (e Error) Error() string { return string(e) }

// ReplError is a replication-service error code, translated to an Error
// by FromReplError according to the fixed mapping table.
type ReplError string

const (
	ReplOK                 ReplError = "OK"
	ReplNotLeader          ReplError = "NOT_LEADER"
	ReplTimeout            ReplError = "TIMEOUT"
	ReplServerNotFound     ReplError = "SERVER_NOT_FOUND"
	ReplNoSpaceLeft        ReplError = "NO_SPACE_LEFT"
	ReplDriveWriteError    ReplError = "DRIVE_WRITE_ERROR"
	ReplRetryRequest       ReplError = "RETRY_REQUEST"
	ReplCannotRemoveLeader ReplError = "CANNOT_REMOVE_LEADER"
)

// FromReplError applies the fixed error-mapping table from the
// replication service's vocabulary to the PG Manager's own.
func FromReplError(re ReplError) Error {
	switch re {
	case ReplOK:
		return OK
	case ReplNotLeader:
		return NotLeader
	case ReplTimeout:
		return Timeout
	case ReplServerNotFound:
		return UnknownPG
	case ReplNoSpaceLeft:
		return NoSpaceLeft
	case ReplDriveWriteError:
		return DriveWriteError
	case ReplRetryRequest:
		return RetryRequest
	case ReplCannotRemoveLeader:
		return UnknownPeer
	default:
		return Unknown
	}
}
