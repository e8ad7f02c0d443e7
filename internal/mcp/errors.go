// Package mcp implements the Model Context Protocol (MCP) server for DocIndex.
package mcp

import (
	"context"
	"errors"
	"fmt"

	amerrors "github.com/Aman-CERP/docindex/internal/errors"
)

// Custom MCP error codes for DocIndex. Standard JSON-RPC codes are reused
// where they apply; the rest are allocated in the implementation-defined
// -32000..-32099 range.
const (
	ErrCodeNotFound        = -32001
	ErrCodeEmbeddingFailed = -32002
	ErrCodeTimeout         = -32003
	ErrCodeFetchFailed     = -32004
	ErrCodeStoreIntegrity  = -32005

	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// ErrToolNotFound indicates the requested tool does not exist.
var ErrToolNotFound = errors.New("tool not found")

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts an internal error into an MCPError. DocError values are
// mapped by Kind (§7 error handling design); anything else falls back to
// context cancellation/timeout or a generic internal error.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var docErr *amerrors.DocError
	if errors.As(err, &docErr) {
		return mapDocError(docErr)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "request timed out"}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "request was canceled"}
	case errors.Is(err, ErrToolNotFound):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: "tool not found"}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: err.Error()}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates an error for unknown methods/tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("tool '%s' not found", name)}
}

// mapDocError maps a DocError by its Kind (§7).
func mapDocError(ae *amerrors.DocError) *MCPError {
	message := ae.Message
	if ae.Suggestion != "" {
		message = fmt.Sprintf("%s %s", ae.Message, ae.Suggestion)
	}

	switch ae.Kind {
	case amerrors.KindNotFound:
		return &MCPError{Code: ErrCodeNotFound, Message: message}
	case amerrors.KindValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case amerrors.KindTransientFetch, amerrors.KindPermanentFetch:
		return &MCPError{Code: ErrCodeFetchFailed, Message: message}
	case amerrors.KindEmbeddingOther, amerrors.KindEmbeddingSize:
		return &MCPError{Code: ErrCodeEmbeddingFailed, Message: message}
	case amerrors.KindStoreIntegrity:
		return &MCPError{Code: ErrCodeStoreIntegrity, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
