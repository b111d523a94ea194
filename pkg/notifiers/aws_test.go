package notifiers

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type fakeSQSClient struct {
	input *sqs.SendMessageInput
	err   error
}

func (f *fakeSQSClient) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

type fakeSNSClient struct {
	input *sns.PublishInput
	err   error
}

func (f *fakeSNSClient) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("msg-123")}, nil
}

func TestSQSNotifierSendsMessage(t *testing.T) {
	client := &fakeSQSClient{}
	n := &sqsNotifier{id: "q", typ: TypeSQS, queueURL: "https://sqs.example/q", client: client, log: noopLogger{}}

	if err := n.Notify(context.Background(), Message{SourceID: "films", Title: "T"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if got := aws.ToString(client.input.QueueUrl); got != "https://sqs.example/q" {
		t.Fatalf("QueueUrl = %s", got)
	}
	attr, ok := client.input.MessageAttributes["source_id"]
	if !ok || aws.ToString(attr.StringValue) != "films" || aws.ToString(attr.DataType) != "String" {
		t.Fatalf("source_id attribute missing or wrong: %#v", attr)
	}
	if !strings.Contains(aws.ToString(client.input.MessageBody), `"source_id":"films"`) {
		t.Fatalf("body missing source_id: %s", aws.ToString(client.input.MessageBody))
	}
}

func TestSQSNotifierError(t *testing.T) {
	n := &sqsNotifier{id: "q", client: &fakeSQSClient{err: errors.New("boom")}, log: noopLogger{}}
	if err := n.Notify(context.Background(), Message{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSNSNotifierPublishes(t *testing.T) {
	client := &fakeSNSClient{}
	n := &snsNotifier{id: "topic", topicARN: "arn:aws:sns:::topic", client: client, log: noopLogger{}}

	if err := n.Notify(context.Background(), Message{SourceID: "films", Title: strings.Repeat("t", 150)}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if got := aws.ToString(client.input.TopicArn); got != "arn:aws:sns:::topic" {
		t.Fatalf("TopicArn = %s", got)
	}
	if got := aws.ToString(client.input.Subject); len([]rune(got)) != 100 {
		t.Fatalf("subject should be truncated to 100 runes, got %d", len([]rune(got)))
	}
	if aws.ToString(client.input.MessageAttributes["source_id"].StringValue) != "films" {
		t.Fatalf("source_id attribute missing")
	}
}

func TestSNSNotifierError(t *testing.T) {
	n := &snsNotifier{id: "topic", client: &fakeSNSClient{err: errors.New("boom")}, log: noopLogger{}}
	if err := n.Notify(context.Background(), Message{}); err == nil {
		t.Fatalf("expected error from Notify")
	}
}

func TestSNSSubjectFallback(t *testing.T) {
	if got := snsSubject(Message{SourceID: "films"}); got != "New item from films" {
		t.Fatalf("unexpected subject %q", got)
	}
}
