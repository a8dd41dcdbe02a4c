// Package output provides the structured error taxonomy shared by the session
// core and the developer shell.
package output

// Exit codes for the developer shell.
const (
	ExitOK             = 0 // Success
	ExitUsage          = 1 // Invalid arguments or flags
	ExitAuth           = 3 // Not authenticated or bad credentials
	ExitSessionRevoked = 4 // Silent switch rejected, re-authentication needed
	ExitNetwork        = 6 // Connection/DNS/timeout error
	ExitAPI            = 7 // Server returned error
	ExitDecode         = 8 // Token or payload could not be decoded
	ExitStorage        = 9 // Persisted state could not be read or written
)

// Error codes.
const (
	CodeUsage          = "usage"
	CodeAuth           = "auth_required"
	CodeSessionRevoked = "session_revoked"
	CodeNetwork        = "network"
	CodeAPI            = "api_error"
	CodeDecode         = "decode"
	CodeStorage        = "storage"
)

// ExitCodeFor returns the exit code for a given error code.
func ExitCodeFor(code string) int {
	switch code {
	case CodeUsage:
		return ExitUsage
	case CodeAuth:
		return ExitAuth
	case CodeSessionRevoked:
		return ExitSessionRevoked
	case CodeNetwork:
		return ExitNetwork
	case CodeAPI:
		return ExitAPI
	case CodeDecode:
		return ExitDecode
	case CodeStorage:
		return ExitStorage
	default:
		return ExitAPI
	}
}
