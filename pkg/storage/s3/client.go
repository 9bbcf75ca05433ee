// Package s3 wraps the object store: presigned uploads, batch deletes, and
// prefix sweeps over note media keys.
package s3

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	signerv4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/notewellhq/notewell-backend/pkg/config"
	"github.com/notewellhq/notewell-backend/pkg/errors"
)

// deleteBatchMax is the S3 limit on keys per DeleteObjects call.
const deleteBatchMax = 1000

// API is the slice of the S3 client the store depends on.
type API interface {
	HeadObject(ctx context.Context, params *awss3.HeadObjectInput, optFns ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, params *awss3.HeadBucketInput, optFns ...func(*awss3.Options)) (*awss3.HeadBucketOutput, error)
	DeleteObjects(ctx context.Context, params *awss3.DeleteObjectsInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, params *awss3.ListObjectsV2Input, optFns ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error)
}

// Presigner issues presigned PUT URLs. Satisfied by *awss3.PresignClient.
type Presigner interface {
	PresignPutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.PresignOptions)) (*signerv4.PresignedHTTPRequest, error)
}

// Client is the object store gateway.
type Client struct {
	api       API
	presigner Presigner
	cfg       config.ObjectStoreConfig
}

func NewS3(awsCfg aws.Config, endpoint *string) *awss3.Client {
	return awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if endpoint != nil {
			o.BaseEndpoint = endpoint
			o.UsePathStyle = true
		}
	})
}

func New(api API, presigner Presigner, cfg config.ObjectStoreConfig) (*Client, error) {
	if api == nil {
		return nil, fmt.Errorf("s3 api is required")
	}
	if presigner == nil {
		return nil, fmt.Errorf("s3 presigner is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("object store bucket is required")
	}
	if cfg.UploadURLExpiry <= 0 {
		cfg.UploadURLExpiry = 15 * time.Minute
	}
	return &Client{api: api, presigner: presigner, cfg: cfg}, nil
}

// IssueUploadURL presigns a PUT for the given key so clients upload directly
// to the bucket.
func (c *Client) IssueUploadURL(ctx context.Context, key string, contentType string) (string, error) {
	input := &awss3.PutObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	req, err := c.presigner.PresignPutObject(ctx, input, awss3.WithPresignExpires(c.cfg.UploadURLExpiry))
	if err != nil {
		return "", errors.Wrap(errors.CodeDependency, err, "presigning upload url")
	}
	return req.URL, nil
}

// Exists reports whether an object is present at the given key.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	_, err := c.api.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, errors.Wrap(errors.CodeDependency, err, "checking object existence")
	}
	return true, nil
}

// DeleteBatch removes the given keys in one call per thousand and returns the
// keys the store reported as undeleted. A non-nil error means the call itself
// failed and nothing can be assumed deleted.
func (c *Client) DeleteBatch(ctx context.Context, keys []string) ([]string, error) {
	var failed []string
	for start := 0; start < len(keys); start += deleteBatchMax {
		end := min(start+deleteBatchMax, len(keys))

		objects := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
		}

		out, err := c.api.DeleteObjects(ctx, &awss3.DeleteObjectsInput{
			Bucket: aws.String(c.cfg.Bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return nil, errors.Wrap(errors.CodeDependency, err, "deleting objects")
		}
		for _, e := range out.Errors {
			failed = append(failed, aws.ToString(e.Key))
		}
	}
	return failed, nil
}

// DeleteByPrefix lists every object under the prefix and deletes it, paging
// through ListObjectsV2 until exhausted. Returns keys reported undeleted.
func (c *Client) DeleteByPrefix(ctx context.Context, prefix string) ([]string, error) {
	var failed []string
	var continuation *string

	for {
		out, err := c.api.ListObjectsV2(ctx, &awss3.ListObjectsV2Input{
			Bucket:            aws.String(c.cfg.Bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuation,
		})
		if err != nil {
			return nil, errors.Wrap(errors.CodeDependency, err, "listing objects by prefix")
		}

		if len(out.Contents) > 0 {
			keys := make([]string, 0, len(out.Contents))
			for _, obj := range out.Contents {
				keys = append(keys, aws.ToString(obj.Key))
			}
			batchFailed, err := c.DeleteBatch(ctx, keys)
			if err != nil {
				return nil, err
			}
			failed = append(failed, batchFailed...)
		}

		if !aws.ToBool(out.IsTruncated) {
			break
		}
		continuation = out.NextContinuationToken
	}
	return failed, nil
}

// PublicURL renders the canonical public URL for a stored key.
func (c *Client) PublicURL(key string) string {
	if c.cfg.PublicBaseURL != "" {
		return strings.TrimSuffix(c.cfg.PublicBaseURL, "/") + "/" + key
	}
	u := url.URL{
		Scheme: "https",
		Host:   c.cfg.Bucket + ".s3.amazonaws.com",
		Path:   "/" + key,
	}
	return u.String()
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if stderrors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
		return true
	}
	return false
}

// Ping verifies the bucket is reachable. Used by readiness probes.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.api.HeadBucket(ctx, &awss3.HeadBucketInput{
		Bucket: aws.String(c.cfg.Bucket),
	})
	if err != nil {
		return fmt.Errorf("pinging bucket %s: %w", c.cfg.Bucket, err)
	}
	return nil
}
