// Package sqschan carries the grading channel over AWS SQS, one queue per
// topic. FIFO queues get the routing key as the message group id so that
// messages for one submission stay ordered; on standard queues ordering is
// best-effort, which the pipeline tolerates because consumers are
// idempotent.
package sqschan

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"

	"github.com/programme-lv/grader/internal/channel"
)

type Channel struct {
	client    *sqs.Client
	queueUrls map[string]string // topic -> queue url
}

var _ channel.Publisher = (*Channel)(nil)
var _ channel.Subscriber = (*Channel)(nil)

func New(client *sqs.Client, queueUrls map[string]string) *Channel {
	return &Channel{client: client, queueUrls: queueUrls}
}

func (c *Channel) queueUrl(topic string) (string, error) {
	url, ok := c.queueUrls[topic]
	if !ok {
		return "", fmt.Errorf("no queue url configured for topic %s", topic)
	}
	return url, nil
}

func (c *Channel) Publish(ctx context.Context, topic string, key string, body []byte) error {
	url, err := c.queueUrl(topic)
	if err != nil {
		return err
	}
	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(url),
		MessageBody: aws.String(string(body)),
	}
	if strings.HasSuffix(url, ".fifo") {
		input.MessageGroupId = aws.String(key)
		input.MessageDeduplicationId = aws.String(uuid.NewString())
	}
	if _, err := c.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", topic, err)
	}
	return nil
}

// Subscribe long-polls the topic's queue until ctx is done. Ack deletes
// the message; Nak zeroes its visibility timeout so SQS redelivers it
// right away.
func (c *Channel) Subscribe(ctx context.Context, topic string, h channel.HandlerFunc) error {
	url, err := c.queueUrl(topic)
	if err != nil {
		return err
	}
	for {
		if ctx.Err() != nil {
			return nil
		}
		output, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(url),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     5,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			time.Sleep(1 * time.Second)
			continue
		}
		for _, m := range output.Messages {
			h(ctx, &delivery{
				ctx:      ctx,
				client:   c.client,
				queueUrl: url,
				body:     []byte(aws.ToString(m.Body)),
				receipt:  aws.ToString(m.ReceiptHandle),
			})
		}
	}
}

type delivery struct {
	ctx      context.Context
	client   *sqs.Client
	queueUrl string
	body     []byte
	receipt  string
}

func (d *delivery) Body() []byte { return d.body }

func (d *delivery) Ack() error {
	_, err := d.client.DeleteMessage(d.ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(d.queueUrl),
		ReceiptHandle: aws.String(d.receipt),
	})
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

func (d *delivery) Nak() error {
	_, err := d.client.ChangeMessageVisibility(d.ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(d.queueUrl),
		ReceiptHandle:     aws.String(d.receipt),
		VisibilityTimeout: 0,
	})
	if err != nil {
		return fmt.Errorf("failed to reset message visibility: %w", err)
	}
	return nil
}
