package provider

import (
	"context"
	"errors"
	"strings"

	contractx "github.com/athena-research/athena-agent/agent/contract"
	qstashx "github.com/athena-research/athena-agent/pkg/qstash"
)

// QStashDispatcher publishes analysis jobs to the worker endpoint
// through the message queue. The job type travels in the envelope so
// one worker URL serves every job kind.
type QStashDispatcher struct {
	client      *qstashx.Client
	destination string
}

var _ contractx.JobDispatcher = (*QStashDispatcher)(nil)

func NewQStashDispatcher(client *qstashx.Client, destination string) (*QStashDispatcher, error) {
	if client == nil {
		return nil, errors.New("qstash client is required")
	}
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return nil, errors.New("job destination url is required")
	}
	return &QStashDispatcher{client: client, destination: destination}, nil
}

func (d *QStashDispatcher) Publish(ctx context.Context, jobType string, payload any) (string, error) {
	envelope := map[string]any{
		"jobType": jobType,
		"payload": payload,
	}
	return d.client.Publish(ctx, d.destination, envelope)
}
