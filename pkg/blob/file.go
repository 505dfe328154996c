/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package blob

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"k8s.io/klog/v2"

	commonerrors "github.com/mammothbox/mammothbox/pkg/errors"
)

// FileStore keeps blobs on the local filesystem under a single root. Writes go
// through a temp file and a rename, so a failed write never leaves a partial
// object at the final path.
type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, commonerrors.NewBadRequest("the blob root dir is empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err = os.MkdirAll(abs, 0o755); err != nil {
		return nil, commonerrors.WrapError(err, "failed to create blob root", commonerrors.InternalError)
	}
	klog.Infof("init file blob store, root: %s", abs)
	return &FileStore{root: abs}, nil
}

func (f *FileStore) put(_ context.Context, key string, reader io.Reader) (string, error) {
	target := filepath.Join(f.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", commonerrors.WrapError(err, "failed to create blob dir", commonerrors.StorageFailure)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return "", commonerrors.WrapError(err, "failed to create temp file", commonerrors.StorageFailure)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()
	if _, err = io.Copy(tmp, reader); err != nil {
		return "", commonerrors.NewWithCode(500, commonerrors.StorageFailure,
			fmt.Sprintf("failed to store %q: %v", key, err))
	}
	if err = tmp.Close(); err != nil {
		return "", err
	}
	if err = os.Rename(tmp.Name(), target); err != nil {
		return "", commonerrors.WrapError(err, "failed to finalize blob", commonerrors.StorageFailure)
	}
	return SchemeFile + target, nil
}

func (f *FileStore) StoreRaw(ctx context.Context, requestId, partId, filename string, reader io.Reader, _ string) (string, error) {
	return f.put(ctx, RawKey(requestId, partId, filename), reader)
}

func (f *FileStore) StoreMedia(ctx context.Context, clusterId, assetId, ext string, reader io.Reader, _ string) (string, error) {
	return f.put(ctx, MediaKey(clusterId, assetId, ext), reader)
}

func (f *FileStore) StoreDerived(ctx context.Context, clusterId, assetId, name string, reader io.Reader, _ string) (string, error) {
	return f.put(ctx, DerivedKey(clusterId, assetId, name), reader)
}

// path resolves a file:// uri and refuses anything escaping the root.
func (f *FileStore) path(uri string) (string, error) {
	if !strings.HasPrefix(uri, SchemeFile) {
		return "", commonerrors.NewBadRequest(fmt.Sprintf("not a file uri: %q", uri))
	}
	p := filepath.Clean(strings.TrimPrefix(uri, SchemeFile))
	if p != f.root && !strings.HasPrefix(p, f.root+string(filepath.Separator)) {
		return "", commonerrors.NewForbidden(fmt.Sprintf("uri %q is outside the blob root", uri))
	}
	return p, nil
}

func (f *FileStore) Retrieve(_ context.Context, uri string) (io.ReadCloser, error) {
	p, err := f.path(uri)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, commonerrors.NewNotFound("Blob", uri)
		}
		return nil, err
	}
	return file, nil
}

func (f *FileStore) Exists(_ context.Context, uri string) (bool, error) {
	p, err := f.path(uri)
	if err != nil {
		return false, err
	}
	if _, err = os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (f *FileStore) Delete(_ context.Context, uri string) error {
	p, err := f.path(uri)
	if err != nil {
		return err
	}
	if err = os.Remove(p); err != nil && !os.IsNotExist(err) {
		klog.ErrorS(err, "failed to delete blob", "path", p)
		return err
	}
	return nil
}

func (f *FileStore) Size(_ context.Context, uri string) (int64, error) {
	p, err := f.path(uri)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, commonerrors.NewNotFound("Blob", uri)
		}
		return 0, err
	}
	return info.Size(), nil
}

func (f *FileStore) List(_ context.Context, prefix string) ([]string, error) {
	start := filepath.Join(f.root, filepath.FromSlash(prefix))
	var uris []string
	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			uris = append(uris, SchemeFile+p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return uris, nil
}
