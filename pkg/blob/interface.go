/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package blob

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	commonconfig "github.com/mammothbox/mammothbox/pkg/config"
	commonerrors "github.com/mammothbox/mammothbox/pkg/errors"
)

const (
	BackendS3   = "s3"
	BackendFile = "file"

	SchemeS3   = "s3://"
	SchemeFile = "file://"
)

// Interface abstracts the byte store behind the catalog. Implementations
// return opaque URIs (s3://bucket/key or file:///path) which are the only
// handle callers persist.
type Interface interface {
	StoreRaw(ctx context.Context, requestId, partId, filename string, reader io.Reader, contentType string) (string, error)
	StoreMedia(ctx context.Context, clusterId, assetId, ext string, reader io.Reader, contentType string) (string, error)
	StoreDerived(ctx context.Context, clusterId, assetId, name string, reader io.Reader, contentType string) (string, error)
	Retrieve(ctx context.Context, uri string) (io.ReadCloser, error)
	Exists(ctx context.Context, uri string) (bool, error)
	Delete(ctx context.Context, uri string) error
	Size(ctx context.Context, uri string) (int64, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// New builds the blob store selected by configuration.
func New() (Interface, error) {
	backend := commonconfig.GetBlobBackend()
	switch backend {
	case BackendS3:
		return NewS3Store()
	case BackendFile:
		return NewFileStore(commonconfig.GetBlobRootDir())
	default:
		return nil, commonerrors.NewBadRequest(fmt.Sprintf("unknown blob backend %q", backend))
	}
}

// RawKey lays out the immutable upload area. Every part of a request lands
// under its own directory so retried uploads never collide.
func RawKey(requestId, partId, filename string) string {
	if filename == "" {
		filename = "payload"
	}
	return path.Join("incoming", requestId, partId, filename)
}

func MediaKey(clusterId, assetId, ext string) string {
	name := assetId
	if ext != "" {
		name = assetId + "." + strings.TrimPrefix(ext, ".")
	}
	return path.Join("media", "clusters", clusterId, name)
}

func DerivedKey(clusterId, assetId, name string) string {
	return path.Join("media", "derived", clusterId, assetId, name)
}

// splitS3URI returns bucket and key from an s3:// uri.
func splitS3URI(uri string) (string, string, error) {
	if !strings.HasPrefix(uri, SchemeS3) {
		return "", "", commonerrors.NewBadRequest(fmt.Sprintf("not an s3 uri: %q", uri))
	}
	rest := strings.TrimPrefix(uri, SchemeS3)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", commonerrors.NewBadRequest(fmt.Sprintf("malformed s3 uri: %q", uri))
	}
	return parts[0], parts[1], nil
}
