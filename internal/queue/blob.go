package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// pointerMagic marks an offloaded message body so Receive can tell a
// pointer from an ordinary small payload without a side channel.
const pointerMagic = "ingestflow/blob-pointer/v1"

type blobPointer struct {
	Magic string `json:"magic"`
	Key   string `json:"key"`
}

// S3API is the subset of the S3 client BlobStore needs.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// KMSAPI is narrowed to what BlobStore needs to name the key used for
// server-side encryption; the actual encrypt/decrypt happens inside S3
// via SSE-KMS, so this client is only consulted to resolve the key id
// once at construction.
type KMSAPI interface {
	DescribeKey(ctx context.Context, in *kms.DescribeKeyInput, opts ...func(*kms.Options)) (*kms.DescribeKeyOutput, error)
}

// BlobStore implements the large-payload offload path spec §5 describes:
// message bodies over the queue's size limit are written to a
// KMS-encrypted S3 bucket and replaced on the wire by a small pointer
// the receiving worker dereferences transparently.
type BlobStore struct {
	s3     S3API
	bucket string
	kmsKey string
}

// NewBlobStore resolves kmsKeyID against the KMS API to fail fast on a
// misconfigured key, then returns a store that encrypts every object it
// writes under that key.
func NewBlobStore(ctx context.Context, s3Client S3API, kmsClient KMSAPI, bucket, kmsKeyID string) (*BlobStore, error) {
	if _, err := kmsClient.DescribeKey(ctx, &kms.DescribeKeyInput{KeyId: aws.String(kmsKeyID)}); err != nil {
		return nil, fmt.Errorf("describe kms key %s: %w", kmsKeyID, err)
	}
	return &BlobStore{s3: s3Client, bucket: bucket, kmsKey: kmsKeyID}, nil
}

// Offload writes body to S3 under a fresh key and returns a small JSON
// pointer to replace it on the queue.
func (b *BlobStore) Offload(ctx context.Context, body []byte) ([]byte, error) {
	key := fmt.Sprintf("offload/%s", uuid.NewString())
	_, err := b.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(b.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(body),
		ServerSideEncryption: "aws:kms",
		SSEKMSKeyId:          aws.String(b.kmsKey),
		ContentType:          aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("put offloaded object %s: %w", key, err)
	}
	pointer := blobPointer{Magic: pointerMagic, Key: key}
	return json.Marshal(pointer)
}

// Dereference downloads and returns the object body a pointer refers to.
func (b *BlobStore) Dereference(ctx context.Context, body []byte) ([]byte, error) {
	var p blobPointer
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode blob pointer: %w", err)
	}
	out, err := b.s3.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(b.bucket), Key: aws.String(p.Key)})
	if err != nil {
		return nil, fmt.Errorf("get offloaded object %s: %w", p.Key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// Delete removes an offloaded object once the message that referenced
// it has been durably acknowledged, so failed-then-retried deliveries
// still find the payload.
func (b *BlobStore) Delete(ctx context.Context, body []byte) error {
	var p blobPointer
	if err := json.Unmarshal(body, &p); err != nil {
		return nil
	}
	_, err := b.s3.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(b.bucket), Key: aws.String(p.Key)})
	return err
}

// IsPointer reports whether body is a blob pointer rather than a raw
// message payload.
func IsPointer(body []byte) bool {
	var p blobPointer
	if err := json.Unmarshal(body, &p); err != nil {
		return false
	}
	return p.Magic == pointerMagic
}
