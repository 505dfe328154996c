/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	commonerrors "github.com/mammothbox/mammothbox/pkg/errors"
)

// ApiError is the unified error response: HTTP code, error code and message.
type ApiError struct {
	HttpCode     int    `json:"-"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

func (err *ApiError) Error() string {
	return err.ErrorMessage
}

// AbortWithApiError converts err into the standardized error format and aborts
// the request with a JSON error response.
func AbortWithApiError(c *gin.Context, err error) {
	if err != nil {
		_ = c.Error(err)
	}
	rsp := convertToErrResponse(err)
	c.AbortWithStatusJSON(rsp.HttpCode, rsp)
}

// convertToErrResponse maps any error onto an ApiError. StatusError carries
// its own HTTP code; coded errors fall back to their code class; everything
// else is an internal error.
func convertToErrResponse(err error) ApiError {
	var result *ApiError
	if errors.As(err, &result) {
		return *result
	}
	var statusErr *commonerrors.StatusError
	if errors.As(err, &statusErr) {
		httpCode, code := statusErr.Status()
		return ApiError{HttpCode: httpCode, ErrorCode: code, ErrorMessage: statusErr.Message}
	}
	httpCode := http.StatusInternalServerError
	code := commonerrors.ReasonForError(err)
	switch {
	case commonerrors.IsNotFound(err):
		httpCode = http.StatusNotFound
	case commonerrors.IsBadRequest(err):
		httpCode = http.StatusBadRequest
	case commonerrors.IsAlreadyExist(err), commonerrors.IsConflict(err):
		httpCode = http.StatusConflict
	case commonerrors.IsRequestEntityTooLarge(err):
		httpCode = http.StatusRequestEntityTooLarge
	}
	if code == "" {
		code = commonerrors.InternalError
	}
	return ApiError{HttpCode: httpCode, ErrorCode: code, ErrorMessage: err.Error()}
}
