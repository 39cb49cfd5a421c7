package vault

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"vfs-go/internal/config"
)

// Environment variables holding static S3 credentials. When unset the
// default AWS credential chain applies.
const (
	EnvS3AccessKeyID     = "VFS_S3_ACCESS_KEY_ID"
	EnvS3SecretAccessKey = "VFS_S3_SECRET_ACCESS_KEY"
)

// s3RequestTimeout bounds every call made by the vault.
const s3RequestTimeout = 5 * time.Minute

// metadataVersionKey is the user-metadata key carrying a snapshot's version.
const metadataVersionKey = "vfs-version"

// S3Vault stores backup content and metadata in an S3 bucket:
//
//	<prefix>/content/<checksum>
//	<prefix>/metadata/<name>
type S3Vault struct {
	name       string
	bucket     string
	prefix     string
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
}

// NewS3Vault builds a vault from cfg. It does not contact S3; call
// ValidateSetup for that.
func NewS3Vault(cfg config.VaultConfig) (*S3Vault, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 vault requires s3_bucket to be set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), s3RequestTimeout)
	defer cancel()

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRetryMode(aws.RetryModeStandard),
		awsconfig.WithRetryMaxAttempts(3),
	}
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.S3Profile))
	}
	if key, secret := os.Getenv(EnvS3AccessKeyID), os.Getenv(EnvS3SecretAccessKey); key != "" && secret != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(key, secret, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Vault{
		name:       cfg.Name,
		bucket:     cfg.S3Bucket,
		prefix:     cfg.S3Prefix,
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
	}, nil
}

func (v *S3Vault) contentKey(checksum string) string {
	return path.Join(v.prefix, "content", checksum)
}

func (v *S3Vault) metadataKey(name string) string {
	return path.Join(v.prefix, "metadata", name)
}

// PutContent uploads content unless an object with the checksum already exists.
func (v *S3Vault) PutContent(checksum string, r io.Reader, size int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), s3RequestTimeout)
	defer cancel()

	key := v.contentKey(checksum)
	exists, err := v.exists(ctx, key)
	if err != nil {
		return err
	}
	if exists {
		written, err := io.Copy(io.Discard, r)
		if err != nil {
			return fmt.Errorf("failed to read content: %w", err)
		}
		if written != size {
			return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
		}
		return nil
	}

	return v.upload(ctx, key, r, size, nil)
}

// GetContent downloads content by checksum and writes it to w.
func (v *S3Vault) GetContent(checksum string, w io.Writer) error {
	ctx, cancel := context.WithTimeout(context.Background(), s3RequestTimeout)
	defer cancel()
	return v.download(ctx, v.contentKey(checksum), w, fmt.Sprintf("content not found: %s", checksum))
}

// DeleteContent removes the content object for checksum. S3 treats a
// missing key as a successful delete.
func (v *S3Vault) DeleteContent(checksum string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s3RequestTimeout)
	defer cancel()

	key := v.contentKey(checksum)
	if _, err := v.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// PutMetadata uploads a named metadata item tagged with version.
func (v *S3Vault) PutMetadata(name string, r io.Reader, size int64, version int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), s3RequestTimeout)
	defer cancel()
	return v.upload(ctx, v.metadataKey(name), r, size, map[string]string{
		metadataVersionKey: strconv.FormatInt(version, 10),
	})
}

// GetMetadata downloads a named metadata item and writes it to w.
func (v *S3Vault) GetMetadata(name string, w io.Writer) error {
	ctx, cancel := context.WithTimeout(context.Background(), s3RequestTimeout)
	defer cancel()
	return v.download(ctx, v.metadataKey(name), w, fmt.Sprintf("metadata not found: %s", name))
}

// GetMetadataVersion reads the version tag of a metadata item, or 0 if absent.
func (v *S3Vault) GetMetadataVersion(name string) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s3RequestTimeout)
	defer cancel()

	out, err := v.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.metadataKey(name)),
	})
	if isNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading metadata version: %w", err)
	}
	raw, ok := out.Metadata[metadataVersionKey]
	if !ok {
		return 0, nil
	}
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version: %w", err)
	}
	return version, nil
}

// ValidateSetup checks that the bucket exists and is reachable.
func (v *S3Vault) ValidateSetup() error {
	ctx, cancel := context.WithTimeout(context.Background(), s3RequestTimeout)
	defer cancel()

	if _, err := v.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(v.bucket)}); err != nil {
		return fmt.Errorf("s3 bucket %s not accessible: %w", v.bucket, err)
	}
	return nil
}

func (v *S3Vault) exists(ctx context.Context, key string) (bool, error) {
	_, err := v.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key),
	})
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking %s: %w", key, err)
	}
	return true, nil
}

// upload reads r fully so the size can be checked before anything is sent.
func (v *S3Vault) upload(ctx context.Context, key string, r io.Reader, size int64, meta map[string]string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read data: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	_, err = v.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(v.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(size),
		Metadata:      meta,
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}

func (v *S3Vault) download(ctx context.Context, key string, w io.Writer, notFoundMsg string) error {
	buf := manager.NewWriteAtBuffer(nil)
	_, err := v.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key),
	})
	if isNotFound(err) {
		return fmt.Errorf("%s", notFoundMsg)
	}
	if err != nil {
		return fmt.Errorf("downloading %s: %w", key, err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	return errors.As(err, &notFound) || errors.As(err, &noSuchKey)
}

var _ Store = (*S3Vault)(nil)
