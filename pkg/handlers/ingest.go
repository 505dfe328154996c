/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package handlers

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	commonerrors "github.com/mammothbox/mammothbox/pkg/errors"
	"github.com/mammothbox/mammothbox/pkg/ingest"
)

// Ingest accepts a multipart form with files[], payload, owner, comments and
// idempotency_key, and answers 202 with the created (or already existing) job.
func (h *Handler) Ingest(c *gin.Context) {
	handleWithStatus(c, http.StatusAccepted, h.ingest)
}

func (h *Handler) ingest(c *gin.Context) (interface{}, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, commonerrors.NewBadRequest(fmt.Sprintf("invalid multipart form: %v", err))
	}

	req := &ingest.Request{
		RequestId: formValue(form, "idempotency_key"),
		Owner:     formValue(form, "owner"),
		Comments:  formValue(form, "comments"),
		Hint:      formValue(form, "hint"),
		Payload:   formValue(form, "payload"),
	}
	for _, header := range form.File["files[]"] {
		part, err := readFilePart(header)
		if err != nil {
			return nil, err
		}
		req.Files = append(req.Files, *part)
	}

	return h.orchestrator.Ingest(c.Request.Context(), req)
}

func formValue(form *multipart.Form, key string) string {
	values := form.Value[key]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func readFilePart(header *multipart.FileHeader) (*ingest.FilePart, error) {
	file, err := header.Open()
	if err != nil {
		return nil, commonerrors.NewBadRequest(fmt.Sprintf("cannot open part %q: %v", header.Filename, err))
	}
	defer func() { _ = file.Close() }()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, commonerrors.NewBadRequest(fmt.Sprintf("cannot read part %q: %v", header.Filename, err))
	}
	return &ingest.FilePart{
		Filename:    header.Filename,
		Data:        data,
		ContentType: header.Header.Get("Content-Type"),
	}, nil
}
