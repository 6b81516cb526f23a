package chatmodel

import (
	"github.com/cockroachdb/errors"
)

// Error kinds, test with errors.Is
var (
	// ErrStartup is returned when the client can not be started:
	// the API key is missing, or the tool provider can not be launched or initialized.
	ErrStartup = errors.New("startup failed")
	// ErrUnknownTool is returned when a tool name does not match a registered tool.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrInvalidArguments is returned when tool arguments are missing or malformed.
	ErrInvalidArguments = errors.New("invalid arguments")
	// ErrTransport is returned when the tool provider connection fails.
	ErrTransport = errors.New("tool provider transport failed")
	// ErrModelAPI is returned when the language model call fails.
	ErrModelAPI = errors.New("language model request failed")

	// ErrFailedUnmarshalInput is kept for tools that decode their input.
	ErrFailedUnmarshalInput = ErrInvalidArguments
)

// Kind returns the name of the error kind, or "internal"
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrStartup):
		return "startup"
	case errors.Is(err, ErrUnknownTool):
		return "unknown_tool"
	case errors.Is(err, ErrInvalidArguments):
		return "invalid_arguments"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrModelAPI):
		return "model_api"
	default:
		return "internal"
	}
}
