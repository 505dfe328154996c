/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package blob

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"k8s.io/klog/v2"

	commonconfig "github.com/mammothbox/mammothbox/pkg/config"
	commonerrors "github.com/mammothbox/mammothbox/pkg/errors"
)

// S3Store backs the blob interface with an S3-compatible object store.
type S3Store struct {
	client   *s3.S3
	uploader *s3manager.Uploader
	bucket   string
}

// NewS3Store creates the store from common configuration. A custom endpoint
// switches to path-style addressing for MinIO and friends.
func NewS3Store() (*S3Store, error) {
	bucket := commonconfig.GetS3Bucket()
	if bucket == "" {
		return nil, commonerrors.NewBadRequest("the s3 bucket is empty")
	}
	awsCfg := aws.NewConfig().WithRegion(commonconfig.GetS3Region())
	if endpoint := commonconfig.GetS3Endpoint(); endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(endpoint).WithS3ForcePathStyle(true)
	}
	if access := commonconfig.GetS3AccessKey(); access != "" {
		awsCfg = awsCfg.WithCredentials(
			credentials.NewStaticCredentials(access, commonconfig.GetS3SecretKey(), ""))
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, commonerrors.WrapError(err, "failed to create s3 session", commonerrors.InternalError)
	}
	store := &S3Store{
		client:   s3.New(sess),
		uploader: s3manager.NewUploader(sess),
		bucket:   bucket,
	}
	klog.Infof("init s3 blob store, bucket: %s, region: %s", bucket, commonconfig.GetS3Region())
	return store, nil
}

func (s *S3Store) put(ctx context.Context, key string, reader io.Reader, contentType string) (string, error) {
	input := &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   reader,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.uploader.UploadWithContext(ctx, input); err != nil {
		klog.ErrorS(err, "failed to upload object", "key", key)
		return "", commonerrors.NewWithCode(500, commonerrors.StorageFailure,
			fmt.Sprintf("failed to store %q: %v", key, err))
	}
	return SchemeS3 + s.bucket + "/" + key, nil
}

func (s *S3Store) StoreRaw(ctx context.Context, requestId, partId, filename string, reader io.Reader, contentType string) (string, error) {
	return s.put(ctx, RawKey(requestId, partId, filename), reader, contentType)
}

func (s *S3Store) StoreMedia(ctx context.Context, clusterId, assetId, ext string, reader io.Reader, contentType string) (string, error) {
	return s.put(ctx, MediaKey(clusterId, assetId, ext), reader, contentType)
}

func (s *S3Store) StoreDerived(ctx context.Context, clusterId, assetId, name string, reader io.Reader, contentType string) (string, error) {
	return s.put(ctx, DerivedKey(clusterId, assetId, name), reader, contentType)
}

func (s *S3Store) key(uri string) (string, error) {
	bucket, key, err := splitS3URI(uri)
	if err != nil {
		return "", err
	}
	if bucket != s.bucket {
		return "", commonerrors.NewBadRequest(fmt.Sprintf("uri bucket %q does not match store bucket %q", bucket, s.bucket))
	}
	return key, nil
}

func (s *S3Store) Retrieve(ctx context.Context, uri string) (io.ReadCloser, error) {
	key, err := s.key(uri)
	if err != nil {
		return nil, err
	}
	output, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, commonerrors.NewNotFound("Blob", uri)
		}
		klog.ErrorS(err, "failed to get object", "key", key)
		return nil, err
	}
	return output.Body, nil
}

func (s *S3Store) Exists(ctx context.Context, uri string) (bool, error) {
	key, err := s.key(uri)
	if err != nil {
		return false, err
	}
	_, err = s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *S3Store) Delete(ctx context.Context, uri string) error {
	key, err := s.key(uri)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		klog.ErrorS(err, "failed to delete object", "key", key)
	}
	return err
}

func (s *S3Store) Size(ctx context.Context, uri string) (int64, error) {
	key, err := s.key(uri)
	if err != nil {
		return 0, err
	}
	output, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return 0, commonerrors.NewNotFound("Blob", uri)
		}
		return 0, err
	}
	return aws.Int64Value(output.ContentLength), nil
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	var uris []string
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}
	err := s.client.ListObjectsV2PagesWithContext(ctx, input,
		func(page *s3.ListObjectsV2Output, lastPage bool) bool {
			for _, obj := range page.Contents {
				uris = append(uris, SchemeS3+s.bucket+"/"+aws.StringValue(obj.Key))
			}
			return true
		})
	if err != nil {
		klog.ErrorS(err, "failed to list objects", "prefix", prefix)
		return nil, err
	}
	return uris, nil
}

func isS3NotFound(err error) bool {
	var aerr awserr.Error
	if stderrors.As(err, &aerr) {
		code := aerr.Code()
		return code == s3.ErrCodeNoSuchKey || code == "NotFound"
	}
	return false
}
