/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	commonconfig "github.com/mammothbox/mammothbox/pkg/config"
	"github.com/mammothbox/mammothbox/pkg/database/client"
	commonerrors "github.com/mammothbox/mammothbox/pkg/errors"
)

// FilePart is one uploaded file, already read into memory by the handler
// under the global request size cap.
type FilePart struct {
	Filename    string
	Data        []byte
	ContentType string
}

// validatedFile carries the detection results the orchestrator persists.
type validatedFile struct {
	part      *FilePart
	mimeType  string
	kind      string
	sha256Hex string
	sizeBytes int64
}

// detectKind classifies a MIME type into an asset kind. Anything that is not
// image, video or audio lands as a document.
func detectKind(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"),
		strings.HasPrefix(mimeType, "video/"),
		strings.HasPrefix(mimeType, "audio/"):
		return client.KindMedia
	default:
		return client.KindDocument
	}
}

// sizeCeiling returns the per-kind upload limit in bytes.
func sizeCeiling(mimeType string) int64 {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return commonconfig.GetMaxImageBytes()
	case strings.HasPrefix(mimeType, "video/"):
		return commonconfig.GetMaxVideoBytes()
	case strings.HasPrefix(mimeType, "audio/"):
		return commonconfig.GetMaxAudioBytes()
	default:
		return commonconfig.GetMaxDocumentBytes()
	}
}

// validateFiles detects MIME types from magic bytes and enforces the per-kind
// size ceilings. Every offending file is reported, not just the first.
func validateFiles(files []FilePart) ([]*validatedFile, error) {
	var results []*validatedFile
	var oversized []string
	for i := range files {
		part := &files[i]
		detected := mimetype.Detect(part.Data)
		mimeType := detected.String()
		if idx := strings.Index(mimeType, ";"); idx > 0 {
			mimeType = mimeType[:idx]
		}
		limit := sizeCeiling(mimeType)
		size := int64(len(part.Data))
		if size > limit {
			oversized = append(oversized,
				fmt.Sprintf("%s: %d bytes exceeds the %d byte limit for %s", part.Filename, size, limit, mimeType))
			continue
		}
		results = append(results, &validatedFile{
			part:      part,
			mimeType:  mimeType,
			kind:      detectKind(mimeType),
			sha256Hex: sha256Hex(part.Data),
			sizeBytes: size,
		})
	}
	if len(oversized) > 0 {
		return nil, commonerrors.NewWithCode(413, commonerrors.FileTooLarge, strings.Join(oversized, "; "))
	}
	return results, nil
}

// validatePayload enforces the payload contract: at most the configured size,
// valid JSON, and an object or non-empty array. Primitives are rejected.
func validatePayload(payload string) ([]map[string]interface{}, error) {
	if payload == "" {
		return nil, nil
	}
	if int64(len(payload)) > commonconfig.GetMaxPayloadBytes() {
		return nil, commonerrors.NewWithCode(413, commonerrors.PayloadTooLarge,
			fmt.Sprintf("payload of %d bytes exceeds the %d byte limit", len(payload), commonconfig.GetMaxPayloadBytes()))
	}
	var decoded interface{}
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return nil, commonerrors.NewWithCode(400, commonerrors.PayloadInvalid,
			fmt.Sprintf("payload is not valid JSON: %v", err))
	}
	switch v := decoded.(type) {
	case map[string]interface{}:
		return []map[string]interface{}{v}, nil
	case []interface{}:
		if len(v) == 0 {
			return nil, commonerrors.NewWithCode(400, commonerrors.PayloadInvalid, "payload array is empty")
		}
		docs := make([]map[string]interface{}, 0, len(v))
		for i, item := range v {
			doc, ok := item.(map[string]interface{})
			if !ok {
				return nil, commonerrors.NewWithCode(400, commonerrors.PayloadInvalid,
					fmt.Sprintf("payload element %d is not an object", i))
			}
			docs = append(docs, doc)
		}
		return docs, nil
	default:
		return nil, commonerrors.NewWithCode(400, commonerrors.PayloadInvalid,
			"payload must be a JSON object or a non-empty array of objects")
	}
}
