// Package loghub is the client for the public append-only topic log. Only
// commitment hashes, stage labels, and timestamps ever leave the service
// through it; business data stays in the private audit store.
package loghub

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	httpClient "github.com/tesseralabs/tessera-api/internal/client/http"
)

const defaultTimeout = 5 * time.Second

// Message is the public slice of an audit commitment
type Message struct {
	CommitmentHash string `json:"commitment_hash"`
	Stage          string `json:"stage"`
	Timestamp      string `json:"timestamp"`
}

// Client talks to the topic-log service over HTTP+JSON
type Client struct {
	httpClient *httpClient.HTTPClient
}

// NewClient creates a topic-log client for the given service URL
func NewClient(baseURL, apiKey string) *Client {
	options := []httpClient.ClientOption{
		httpClient.WithBaseURL(baseURL),
		httpClient.WithTimeout(defaultTimeout),
		httpClient.WithRetryConfig(httpClient.DefaultRetryConfig()),
	}
	if apiKey != "" {
		options = append(options, httpClient.WithDefaultHeader("X-API-Key", apiKey))
	}
	return &Client{httpClient: httpClient.NewHTTPClient(options...)}
}

type createTopicRequest struct {
	Memo string `json:"memo"`
}

type createTopicResponse struct {
	TopicID string `json:"topic_id"`
}

type submitResponse struct {
	SequenceNumber uint64 `json:"sequence_number"`
}

// CreateTopic creates a new append-only topic and returns its identifier
func (c *Client) CreateTopic(ctx context.Context, memo string) (string, error) {
	resp, err := c.httpClient.Post(ctx, "/v1/topics", createTopicRequest{Memo: memo})
	if err != nil {
		return "", errors.Wrap(err, "failed to create topic")
	}
	var decoded createTopicResponse
	if err := c.httpClient.ProcessJSONResponse(resp, &decoded); err != nil {
		return "", errors.Wrap(err, "failed to decode create-topic response")
	}
	if decoded.TopicID == "" {
		return "", errors.New("topic-log returned empty topic id")
	}
	return decoded.TopicID, nil
}

// Submit appends a message to a topic. The returned sequence number is
// assigned by the log and is monotonically increasing per topic.
func (c *Client) Submit(ctx context.Context, topicID string, msg Message) (uint64, error) {
	path := fmt.Sprintf("/v1/topics/%s/messages", topicID)
	resp, err := c.httpClient.Post(ctx, path, msg)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to submit to topic %s", topicID)
	}
	var decoded submitResponse
	if err := c.httpClient.ProcessJSONResponse(resp, &decoded); err != nil {
		return 0, errors.Wrap(err, "failed to decode submit response")
	}
	return decoded.SequenceNumber, nil
}
