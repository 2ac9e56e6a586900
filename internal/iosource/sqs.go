package iosource

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/openepi/sentinel/pkg/pipeline"
	"github.com/openepi/sentinel/pkg/record"
)

// sqsAPI is the slice of the SQS client the consumer uses.
type sqsAPI interface {
	ReceiveMessage(
		ctx context.Context,
		params *sqs.ReceiveMessageInput,
		optFns ...func(*sqs.Options),
	) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(
		ctx context.Context,
		params *sqs.DeleteMessageInput,
		optFns ...func(*sqs.Options),
	) (*sqs.DeleteMessageOutput, error)
}

// SQSSource long-polls a queue whose message bodies are single record
// envelopes. A message is deleted only after its record reached the
// buffer, so a crash replays it; deterministic keys downstream make the
// replay harmless.
type SQSSource struct {
	api      sqsAPI
	queueURL string
	retry    pipeline.RetryPolicy
}

// NewSQSSource creates the consumer. The LOCAL_SQS mode differs only in
// how the caller builds the client (endpoint override), not here.
func NewSQSSource(api sqsAPI, queueURL string) *SQSSource {
	return &SQSSource{
		api:      api,
		queueURL: queueURL,
		retry:    pipeline.DefaultRetry(),
	}
}

func (s *SQSSource) Name() string { return "sqs:" + s.queueURL }

func (s *SQSSource) Run(ctx context.Context, emit Emit) error {
	for {
		var out *sqs.ReceiveMessageOutput
		err := s.retry.Do(ctx, func() error {
			var recvErr error
			out, recvErr = s.api.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
				QueueUrl:            aws.String(s.queueURL),
				MaxNumberOfMessages: 10,
				WaitTimeSeconds:     20,
			})
			if recvErr != nil {
				return pipeline.NewSourceError(s.Name(), recvErr)
			}
			return nil
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		for _, msg := range out.Messages {
			var rec record.RawRecord
			if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &rec); err != nil {
				// A malformed body would redeliver forever; drop it.
				slog.Warn("Dropping malformed queue message",
					"queue", s.queueURL, "error", err)
				_ = s.delete(ctx, msg.ReceiptHandle)
				continue
			}
			item := pipeline.Item{Form: rec.Form, Record: rec}
			if err := emit(ctx, item); err != nil {
				return err
			}
			if err := s.delete(ctx, msg.ReceiptHandle); err != nil {
				return err
			}
		}
	}
}

func (s *SQSSource) delete(ctx context.Context, handle *string) error {
	return s.retry.Do(ctx, func() error {
		_, err := s.api.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(s.queueURL),
			ReceiptHandle: handle,
		})
		if err != nil {
			return pipeline.NewSourceError(s.Name(), err)
		}
		return nil
	})
}
