// Package aws_s3 provides the S3 bucket blob store backend.
package aws_s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/sharedcode/cascade"
)

type blobStore struct {
	s3Client   *s3.Client
	bucketName string
	uploader   *manager.Uploader
	downloader *manager.Downloader
}

// NewBlobStore returns a blob store backed by the named S3 bucket. Objects
// are keyed "sha256/<hex>".
func NewBlobStore(s3Client *s3.Client, bucketName string) (cascade.BlobStore, error) {
	if s3Client == nil {
		return nil, fmt.Errorf("s3Client parameter can't be nil")
	}
	return &blobStore{
		s3Client:   s3Client,
		bucketName: bucketName,
		uploader:   manager.NewUploader(s3Client),
		downloader: manager.NewDownloader(s3Client),
	}, nil
}

func (b blobStore) objectName(key cascade.Key) string {
	return "sha256/" + key.Hex()
}

func (b blobStore) Has(ctx context.Context, key cascade.Key) (bool, error) {
	_, err := b.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(b.objectName(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, cascade.Error{Code: cascade.Transient, Err: err}
	}
	return true, nil
}

func (b blobStore) Get(ctx context.Context, key cascade.Key) ([]byte, error) {
	buf := manager.NewWriteAtBuffer([]byte{})
	_, err := b.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(b.objectName(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, cascade.Error{Code: cascade.Transient, Err: err}
	}
	return buf.Bytes(), nil
}

func (b blobStore) Put(ctx context.Context, key cascade.Key, ba []byte) error {
	if actual := cascade.NewKey(ba); actual != key {
		return cascade.Error{
			Code:     cascade.HashMismatch,
			Err:      fmt.Errorf("expected key %s, actual %s", key, actual),
			UserData: actual,
		}
	}
	// S3 puts of the same key carry identical bytes so duplicate uploads are
	// harmless last-writer-wins.
	_, err := b.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(b.objectName(key)),
		Body:   bytes.NewReader(ba),
	})
	if err != nil {
		return cascade.Error{Code: cascade.Transient, Err: err}
	}
	return nil
}

func (b blobStore) Erase(ctx context.Context, key cascade.Key) error {
	_, err := b.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(b.objectName(key)),
	})
	if err != nil && !isNotFound(err) {
		return cascade.Error{Code: cascade.Transient, Err: err}
	}
	return nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	return errors.As(err, &nsk)
}
