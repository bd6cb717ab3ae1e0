// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package errors holds the error taxonomy shared by the client core and the
// conversation server. None of these conditions is fatal to the process.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a failure class.
type ErrorCode string

const (
	ErrDeviceUnavailable     ErrorCode = "DEVICE_UNAVAILABLE"     // no matching or permitted audio device
	ErrTransportDisconnected ErrorCode = "TRANSPORT_DISCONNECTED" // channel not open at send time
	ErrAnalysisFailed        ErrorCode = "ANALYSIS_FAILED"        // analysis collaborator error
	ErrStorageFailed         ErrorCode = "STORAGE_FAILED"         // create/update rejected
	ErrMalformedMessage      ErrorCode = "MALFORMED_MESSAGE"      // undecodable channel frame
	ErrNotFound              ErrorCode = "NOT_FOUND"
	ErrInvalidRequest        ErrorCode = "INVALID_REQUEST"
)

// ConvoError is a structured error with a code and an HTTP status.
type ConvoError struct {
	Code    ErrorCode
	Status  int
	Message string
	Err     error
}

func (e *ConvoError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ConvoError) Unwrap() error { return e.Err }

func NewDeviceUnavailable(deviceID string, err error) *ConvoError {
	msg := "default audio input is unavailable"
	if deviceID != "" {
		msg = fmt.Sprintf("audio device %q is unavailable", deviceID)
	}
	return &ConvoError{Code: ErrDeviceUnavailable, Status: http.StatusServiceUnavailable, Message: msg, Err: err}
}

func NewTransportDisconnected(err error) *ConvoError {
	return &ConvoError{Code: ErrTransportDisconnected, Status: http.StatusServiceUnavailable, Message: "session channel is not connected", Err: err}
}

func NewAnalysisFailed(operation string, err error) *ConvoError {
	return &ConvoError{Code: ErrAnalysisFailed, Status: http.StatusBadGateway, Message: operation + " failed", Err: err}
}

func NewStorageFailed(operation string, err error) *ConvoError {
	return &ConvoError{Code: ErrStorageFailed, Status: http.StatusInternalServerError, Message: operation + " failed", Err: err}
}

func NewMalformedMessage(err error) *ConvoError {
	return &ConvoError{Code: ErrMalformedMessage, Status: http.StatusBadRequest, Message: "undecodable frame", Err: err}
}

func NewNotFound(kind string, id int64) *ConvoError {
	return &ConvoError{Code: ErrNotFound, Status: http.StatusNotFound, Message: fmt.Sprintf("%s %d not found", kind, id)}
}

func NewInvalidRequest(msg string) *ConvoError {
	return &ConvoError{Code: ErrInvalidRequest, Status: http.StatusBadRequest, Message: msg}
}

// Is reports whether err (or anything it wraps) is a ConvoError with code.
func Is(err error, code ErrorCode) bool {
	var cErr *ConvoError
	if stderrors.As(err, &cErr) {
		return cErr.Code == code
	}
	return false
}

// StatusOf returns the HTTP status for err, 500 for foreign errors.
func StatusOf(err error) int {
	var cErr *ConvoError
	if stderrors.As(err, &cErr) && cErr.Status != 0 {
		return cErr.Status
	}
	return http.StatusInternalServerError
}

// As finds the first ConvoError in err's chain.
func As(err error, target **ConvoError) bool {
	return stderrors.As(err, target)
}
