package iosource

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/openepi/sentinel/pkg/pipeline"
)

// s3API is the slice of the S3 client the poller uses.
type s3API interface {
	ListObjectsV2(
		ctx context.Context,
		params *s3.ListObjectsV2Input,
		optFns ...func(*s3.Options),
	) (*s3.ListObjectsV2Output, error)
	GetObject(
		ctx context.Context,
		params *s3.GetObjectInput,
		optFns ...func(*s3.Options),
	) (*s3.GetObjectOutput, error)
}

// S3Source polls a bucket prefix for envelope objects: newline-delimited
// JSON, one record per line. Objects are immutable once written, so a key
// is read exactly once per process.
type S3Source struct {
	api    s3API
	bucket string
	prefix string
	poll   time.Duration
	retry  pipeline.RetryPolicy

	seen map[string]bool
}

// NewS3Source creates the poller. A zero poll interval means a single
// pass over the prefix, which is how the initial import runs.
func NewS3Source(api s3API, bucket, prefix string, poll time.Duration) *S3Source {
	return &S3Source{
		api:    api,
		bucket: bucket,
		prefix: prefix,
		poll:   poll,
		retry:  pipeline.DefaultRetry(),
		seen:   make(map[string]bool),
	}
}

func (s *S3Source) Name() string { return "s3:" + s.bucket + "/" + s.prefix }

func (s *S3Source) Run(ctx context.Context, emit Emit) error {
	for {
		if err := s.pass(ctx, emit); err != nil {
			return err
		}
		if s.poll <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.poll):
		}
	}
}

// pass lists the prefix and reads every unseen object in key order.
func (s *S3Source) pass(ctx context.Context, emit Emit) error {
	var token *string
	for {
		var page *s3.ListObjectsV2Output
		err := s.retry.Do(ctx, func() error {
			var listErr error
			page, listErr = s.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
				Bucket:            aws.String(s.bucket),
				Prefix:            aws.String(s.prefix),
				ContinuationToken: token,
			})
			if listErr != nil {
				return pipeline.NewSourceError(s.Name(), listErr)
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if s.seen[key] {
				continue
			}
			if err := s.readObject(ctx, key, emit); err != nil {
				return err
			}
			s.seen[key] = true
		}

		if page.NextContinuationToken == nil {
			return nil
		}
		token = page.NextContinuationToken
	}
}

func (s *S3Source) readObject(ctx context.Context, key string, emit Emit) error {
	var out *s3.GetObjectOutput
	err := s.retry.Do(ctx, func() error {
		var getErr error
		out, getErr = s.api.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if getErr != nil {
			return pipeline.NewSourceError(s.Name(), getErr)
		}
		return nil
	})
	if err != nil {
		return err
	}
	defer out.Body.Close()

	if err := decodeEnvelopes(ctx, out.Body, emit); err != nil {
		return pipeline.NewSourceError(s.Name(), err)
	}
	return nil
}
