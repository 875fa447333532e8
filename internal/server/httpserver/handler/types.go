package handler

import "time"

// Response is the standard API response envelope.
// All JSON responses use this format (except /metrics).
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string, details any) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Details:   details,
	}
}

// CreateSessionRequest is the request body for POST /sessions.
type CreateSessionRequest struct {
	Identity string `json:"identity"`
	Force    bool   `json:"force,omitempty"`
}

// PingResponse is the response body for GET /ping.
type PingResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	ActiveCount int    `json:"active_count"`
}

// PurgeResponse is the response body for DELETE /sessions/{identity}.
type PurgeResponse struct {
	Identity string `json:"identity"`
	Purged   bool   `json:"purged"`
}

// StatusResponse is the response body for /health and /ready.
type StatusResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}
