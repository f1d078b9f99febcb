package errors

import (
	"fmt"
	"net/http"
)

// Code represents an error code with HTTP status and message
type Code struct {
	Code    int    // Business error code
	Status  int    // HTTP status code
	Message string // Error message
}

// Error codes for different modules
const (
	// Success
	Success = 0

	// Common errors (1000-1999)
	ErrInternalServer  = 1000
	ErrInvalidParams   = 1001
	ErrNotFound        = 1002
	ErrConflict        = 1003
	ErrTooManyRequests = 1004
	ErrBadRequest      = 1005
	ErrServiceUnavail  = 1006

	// Conversation errors (6000-6099)
	ErrConversationBusy     = 6000
	ErrUnknownModel         = 6001
	ErrUnknownMode          = 6002
	ErrTurnCancelled        = 6003
	ErrToolLoopAborted      = 6004
	ErrEmptyMessage         = 6005
	ErrConversationNotFound = 6006

	// Provider errors (6100-6199)
	ErrProviderUnavailable = 6100
	ErrProviderRejected    = 6101

	// Tool errors (6200-6299)
	ErrToolNotRegistered = 6200
	ErrToolValidation    = 6201
	ErrToolExecution     = 6202
	ErrToolTimeout       = 6203

	// Storage errors (6300-6399)
	ErrStoreUnavailable = 6300
	ErrStoreCorrupt     = 6301
)

// codeMap maps error codes to their details
var codeMap = map[int]Code{
	Success: {Success, http.StatusOK, "Success"},

	// Common errors
	ErrInternalServer:  {ErrInternalServer, http.StatusInternalServerError, "Internal server error"},
	ErrInvalidParams:   {ErrInvalidParams, http.StatusBadRequest, "Invalid parameters"},
	ErrNotFound:        {ErrNotFound, http.StatusNotFound, "Resource not found"},
	ErrConflict:        {ErrConflict, http.StatusConflict, "Resource conflict"},
	ErrTooManyRequests: {ErrTooManyRequests, http.StatusTooManyRequests, "Too many requests"},
	ErrBadRequest:      {ErrBadRequest, http.StatusBadRequest, "Bad request"},
	ErrServiceUnavail:  {ErrServiceUnavail, http.StatusServiceUnavailable, "Service unavailable"},

	// Conversation errors
	ErrConversationBusy:     {ErrConversationBusy, http.StatusConflict, "A turn is already in flight for this conversation"},
	ErrUnknownModel:         {ErrUnknownModel, http.StatusBadRequest, "No provider registered for the requested model"},
	ErrUnknownMode:          {ErrUnknownMode, http.StatusBadRequest, "Unknown conversation mode"},
	ErrTurnCancelled:        {ErrTurnCancelled, http.StatusRequestTimeout, "Turn cancelled"},
	ErrToolLoopAborted:      {ErrToolLoopAborted, http.StatusOK, "Tool loop aborted"},
	ErrEmptyMessage:         {ErrEmptyMessage, http.StatusBadRequest, "Message must not be empty"},
	ErrConversationNotFound: {ErrConversationNotFound, http.StatusNotFound, "Conversation not found"},

	// Provider errors
	ErrProviderUnavailable: {ErrProviderUnavailable, http.StatusBadGateway, "Model provider unavailable"},
	ErrProviderRejected:    {ErrProviderRejected, http.StatusBadRequest, "Model provider rejected the request"},

	// Tool errors
	ErrToolNotRegistered: {ErrToolNotRegistered, http.StatusBadRequest, "Tool not registered"},
	ErrToolValidation:    {ErrToolValidation, http.StatusBadRequest, "Tool arguments failed validation"},
	ErrToolExecution:     {ErrToolExecution, http.StatusInternalServerError, "Tool execution failed"},
	ErrToolTimeout:       {ErrToolTimeout, http.StatusGatewayTimeout, "Tool execution timed out"},

	// Storage errors
	ErrStoreUnavailable: {ErrStoreUnavailable, http.StatusServiceUnavailable, "Conversation store unavailable"},
	ErrStoreCorrupt:     {ErrStoreCorrupt, http.StatusInternalServerError, "Stored conversation record is corrupt"},
}

// GetCode returns the Code for a given error code
func GetCode(code int) Code {
	if c, ok := codeMap[code]; ok {
		return c
	}
	return codeMap[ErrInternalServer]
}

// GetHTTPStatus returns HTTP status for a given error code
func GetHTTPStatus(code int) int {
	return GetCode(code).Status
}

// GetMessage returns the message for a given error code
func GetMessage(code int) string {
	return GetCode(code).Message
}

// FormatError formats an error message with code
func FormatError(code int, details ...string) string {
	msg := GetMessage(code)
	if len(details) > 0 && details[0] != "" {
		return fmt.Sprintf("%s: %s", msg, details[0])
	}
	return msg
}
