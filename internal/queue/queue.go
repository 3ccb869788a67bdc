// Package queue implements the message queue adapter API from spec §6:
// FIFO send/receive/delete/change-visibility over an SQS-compatible
// queue, with transparent large-payload offload to a KMS-encrypted
// object store when a body exceeds the queue's size limit (§5).
package queue

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/brightlane/ingestflow/internal/domain"
)

// maxMessageBytes mirrors the SQS FIFO queue size limit spec §5 names.
const maxMessageBytes = 256 * 1024

// Message is a received queue item together with its receipt handle,
// used to delete or extend visibility.
type Message struct {
	Body   []byte
	Handle string
}

// SQSAPI is the subset of the SQS client the adapter needs, narrowed for
// fakes in tests.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, opts ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, opts ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, opts ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, in *sqs.ChangeMessageVisibilityInput, opts ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

// Adapter implements send_backfill_ingest / send_ingest_webhook /
// receive / delete / change_visibility (§6).
type Adapter struct {
	sqs             SQSAPI
	ingestQueueURL  string
	webhookQueueURL string
	blobs           *BlobStore
}

func New(client SQSAPI, ingestQueueURL, webhookQueueURL string, blobs *BlobStore) *Adapter {
	return &Adapter{sqs: client, ingestQueueURL: ingestQueueURL, webhookQueueURL: webhookQueueURL, blobs: blobs}
}

// SendBackfillIngest serializes a job config and sends it to the ingest
// FIFO queue, using cfg.TenantID as the message_group_id; no lane key
// is taken (§6).
func (a *Adapter) SendBackfillIngest(ctx context.Context, cfg domain.JobConfig, dedupID string) error {
	body, err := cfg.Marshal()
	if err != nil {
		return fmt.Errorf("marshal job config: %w", err)
	}
	groupID := cfg.TenantID
	return a.send(ctx, a.ingestQueueURL, body, groupID, dedupID)
}

// SendIngestWebhook sends a webhook/CDC fan-in message with an explicit
// group and dedup id (§6), used by the CDC listener's event forwarding
// (§4.4).
func (a *Adapter) SendIngestWebhook(ctx context.Context, body []byte, groupID, dedupID string) error {
	return a.send(ctx, a.webhookQueueURL, body, groupID, dedupID)
}

func (a *Adapter) send(ctx context.Context, queueURL string, body []byte, groupID, dedupID string) error {
	if len(body) > maxMessageBytes && a.blobs != nil {
		pointer, err := a.blobs.Offload(ctx, body)
		if err != nil {
			return fmt.Errorf("offload large payload: %w", err)
		}
		body = pointer
	}

	input := &sqs.SendMessageInput{
		QueueUrl:               aws.String(queueURL),
		MessageBody:            aws.String(string(body)),
		MessageGroupId:         aws.String(groupID),
		MessageDeduplicationId: aws.String(dedupID),
	}
	_, err := a.sqs.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// Receive polls the ingest queue for up to maxMessages messages,
// dereferencing any large-payload pointer bodies transparently (§5).
func (a *Adapter) Receive(ctx context.Context, queueURL string, maxMessages int32, waitSeconds int32) ([]Message, error) {
	out, err := a.sqs.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(queueURL),
		MaxNumberOfMessages: maxMessages,
		WaitTimeSeconds:     waitSeconds,
		AttributeNames:      []types.QueueAttributeName{types.QueueAttributeNameAll},
	})
	if err != nil {
		return nil, fmt.Errorf("receive message: %w", err)
	}

	messages := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		body := []byte(aws.ToString(m.Body))
		if a.blobs != nil && IsPointer(body) {
			deref, derefErr := a.blobs.Dereference(ctx, body)
			if derefErr != nil {
				return nil, fmt.Errorf("dereference large payload: %w", derefErr)
			}
			body = deref
		}
		messages = append(messages, Message{Body: body, Handle: aws.ToString(m.ReceiptHandle)})
	}
	return messages, nil
}

// Delete acknowledges a message, removing it from the queue.
func (a *Adapter) Delete(ctx context.Context, queueURL, handle string) error {
	_, err := a.sqs.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(handle),
	})
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// ChangeVisibility extends a message's invisibility window. This is the
// queue-adapter side of the ExtendVisibility control-flow protocol
// (§5): the worker harness calls this instead of deleting the message
// and returns without having consumed a retry attempt.
func (a *Adapter) ChangeVisibility(ctx context.Context, queueURL, handle string, seconds int32) error {
	_, err := a.sqs.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(queueURL),
		ReceiptHandle:     aws.String(handle),
		VisibilityTimeout: seconds,
	})
	if err != nil {
		return fmt.Errorf("change message visibility: %w", err)
	}
	return nil
}

// IngestQueueURL returns the configured ingest FIFO queue URL, used by
// Receive callers that don't hold their own reference.
func (a *Adapter) IngestQueueURL() string  { return a.ingestQueueURL }
func (a *Adapter) WebhookQueueURL() string { return a.webhookQueueURL }
