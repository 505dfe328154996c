/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const MammothPrefix = "Mammoth."

/*
   5-digit Error Code Convention: [xx][yyy]
   [xx] Business ID (00-99), used to distinguish errors from different business interfaces.
   00: General errors
   01: Ingestion-related errors
   02: Job/queue-related errors
   03: Schema-related errors
   04: Cluster-related errors
   [yyy] Error code range (000-999)
*/

// public: 00xxx
const (
	InternalError         = MammothPrefix + "00001"
	BadRequest            = MammothPrefix + "00002"
	Forbidden             = MammothPrefix + "00003"
	AlreadyExist          = MammothPrefix + "00004"
	NotFound              = MammothPrefix + "00005"
	RequestEntityTooLarge = MammothPrefix + "00006"
	Conflict              = MammothPrefix + "00007"
)

// ingestion: 01xxx
const (
	PayloadInvalid  = MammothPrefix + "01001"
	FileTooLarge    = MammothPrefix + "01002"
	PayloadTooLarge = MammothPrefix + "01003"
	StorageFailure  = MammothPrefix + "01004"
)

// job/queue: 02xxx
const (
	JobNotFound    = MammothPrefix + "02001"
	QueueClosed    = MammothPrefix + "02002"
	PermanentError = MammothPrefix + "02003"
)

// schema: 03xxx
const (
	SchemaNotFound        = MammothPrefix + "03001"
	SchemaNotProvisional  = MammothPrefix + "03002"
	SchemaFingerprintFail = MammothPrefix + "03003"
)

// cluster: 04xxx
const (
	ClusterNotFound      = MammothPrefix + "04001"
	ClusterNameExists    = MammothPrefix + "04002"
	ClusterMergeSelf     = MammothPrefix + "04003"
	ThresholdOutOfRange  = MammothPrefix + "04004"
	ClusterNotMigratable = MammothPrefix + "04005"
)

// StatusError is an error with an HTTP status and a mammoth error code,
// suitable for direct conversion at the API boundary.
type StatusError struct {
	HttpCode int
	Code     string
	Message  string
}

func (e *StatusError) Error() string {
	return e.Message
}

func (e *StatusError) Status() (int, string) {
	return e.HttpCode, e.Code
}

func NewBadRequest(message string) *StatusError {
	return &StatusError{HttpCode: http.StatusBadRequest, Code: BadRequest, Message: message}
}

func NewInternalError(message string) *StatusError {
	return &StatusError{HttpCode: http.StatusInternalServerError, Code: InternalError, Message: message}
}

func NewAlreadyExist(message string) *StatusError {
	return &StatusError{HttpCode: http.StatusConflict, Code: AlreadyExist, Message: message}
}

func NewConflict(message string) *StatusError {
	return &StatusError{HttpCode: http.StatusConflict, Code: Conflict, Message: message}
}

func NewForbidden(message string) *StatusError {
	return &StatusError{HttpCode: http.StatusForbidden, Code: Forbidden, Message: message}
}

func NewNotFound(kind, name string) *StatusError {
	return &StatusError{
		HttpCode: http.StatusNotFound,
		Code:     NotFound,
		Message:  fmt.Sprintf("%s %q not found", kind, name),
	}
}

func NewNotFoundWithMessage(message string) *StatusError {
	return &StatusError{HttpCode: http.StatusNotFound, Code: NotFound, Message: message}
}

func NewRequestEntityTooLargeError(message string) *StatusError {
	return &StatusError{HttpCode: http.StatusRequestEntityTooLarge, Code: RequestEntityTooLarge, Message: message}
}

func NewWithCode(httpCode int, code, message string) *StatusError {
	return &StatusError{HttpCode: httpCode, Code: code, Message: message}
}

// NewPermanent marks a processor failure that must not be retried.
func NewPermanent(message string) *StatusError {
	return &StatusError{HttpCode: http.StatusUnprocessableEntity, Code: PermanentError, Message: message}
}

func ReasonForError(err error) string {
	if err == nil {
		return ""
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code
	}
	var codedErr *Error
	if errors.As(err, &codedErr) {
		return codedErr.Code
	}
	return ""
}

// IsMammoth returns true if the error carries a mammoth error code.
func IsMammoth(err error) bool {
	if err == nil {
		return false
	}
	return strings.HasPrefix(ReasonForError(err), MammothPrefix)
}

func IsAlreadyExist(err error) bool {
	return ReasonForError(err) == AlreadyExist
}

func IsBadRequest(err error) bool {
	return ReasonForError(err) == BadRequest
}

func IsInternal(err error) bool {
	return ReasonForError(err) == InternalError
}

func IsNotFound(err error) bool {
	return ReasonForError(err) == NotFound || ReasonForError(err) == JobNotFound ||
		ReasonForError(err) == SchemaNotFound || ReasonForError(err) == ClusterNotFound
}

func IsConflict(err error) bool {
	return ReasonForError(err) == Conflict
}

func IsRequestEntityTooLarge(err error) bool {
	code := ReasonForError(err)
	return code == RequestEntityTooLarge || code == FileTooLarge || code == PayloadTooLarge
}

func IsPermanent(err error) bool {
	return ReasonForError(err) == PermanentError
}
