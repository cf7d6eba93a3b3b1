package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// ActivityMessage is the payload published for every committed Activity row.
type ActivityMessage struct {
	ID               int             `json:"id"`
	Type             string          `json:"type"`
	CollectiveId     *int            `json:"collective_id"`
	FromCollectiveId *int            `json:"from_collective_id"`
	HostCollectiveId *int            `json:"host_collective_id"`
	UserId           *int            `json:"user_id"`
	Data             json.RawMessage `json:"data"`
	CreatedAt        time.Time       `json:"created_at"`
	CorrelationId    string          `json:"correlation_id"`
}

const pubsubMaxConnectAttempts = 5

var (
	pubsubClient   *pubsub.Client
	pubsubClientMu sync.Mutex
	topics         = map[string]*pubsub.Topic{}
)

func getPubSubProjectID() string {
	if v := GetSettings().PubSub.ProjectId; v != "" {
		return v
	}
	// Cloud Run/Cloud Functions often set this.
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		return v
	}
	return os.Getenv("GCP_PROJECT")
}

// GetPubSubClient returns a Pub/Sub client, initializing with retries if needed.
// It uses Application Default Credentials unless PUBSUB_CREDENTIALS_JSON is provided.
func GetPubSubClient(ctx context.Context) (*pubsub.Client, error) {
	pubsubClientMu.Lock()
	if pubsubClient != nil {
		c := pubsubClient
		pubsubClientMu.Unlock()
		return c, nil
	}
	pubsubClientMu.Unlock()

	projectID := getPubSubProjectID()
	if projectID == "" {
		return nil, errors.New("pubsub project id is not configured")
	}
	credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON")

	var lastErr error
	for attempt := 1; attempt <= pubsubMaxConnectAttempts; attempt++ {
		var (
			c   *pubsub.Client
			err error
		)
		if credJSON != "" {
			c, err = pubsub.NewClient(ctx, projectID, option.WithCredentialsJSON([]byte(credJSON)))
		} else {
			c, err = pubsub.NewClient(ctx, projectID)
		}
		if err == nil {
			pubsubClientMu.Lock()
			if pubsubClient == nil {
				pubsubClient = c
			} else {
				// Another goroutine won the race; close ours.
				_ = c.Close()
			}
			c2 := pubsubClient
			pubsubClientMu.Unlock()

			log.Printf("pubsub client ready (project_id=%s attempt=%d)", projectID, attempt)
			return c2, nil
		}
		lastErr = err

		sleep := backoff(attempt)
		log.Printf("failed to init pubsub client (project_id=%s attempt=%d): %v; retrying in %s", projectID, attempt, err, sleep)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
	return nil, fmt.Errorf("init pubsub client: %w", lastErr)
}

func activitiesTopic(ctx context.Context, c *pubsub.Client) (*pubsub.Topic, error) {
	name := GetSettings().PubSub.ActivitiesTopic
	if name == "" {
		return nil, errors.New("activities topic is not configured")
	}

	pubsubClientMu.Lock()
	defer pubsubClientMu.Unlock()
	if t, ok := topics[name]; ok {
		return t, nil
	}
	t := c.Topic(name)
	ok, err := t.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		if t, err = c.CreateTopic(ctx, name); err != nil {
			return nil, fmt.Errorf("create topic %q: %w", name, err)
		}
	}
	t.EnableMessageOrdering = true
	topics[name] = t
	return t, nil
}

// PublishActivityWithResult publishes and returns the Pub/Sub server-assigned message ID.
// Messages of the same collective share an ordering key.
func PublishActivityWithResult(ctx context.Context, msg ActivityMessage) (string, error) {
	client, err := GetPubSubClient(ctx)
	if err != nil {
		return "", err
	}
	t, err := activitiesTopic(ctx, client)
	if err != nil {
		return "", err
	}

	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	orderingKey := "platform"
	if msg.CollectiveId != nil {
		orderingKey = strconv.Itoa(*msg.CollectiveId)
	}
	result := t.Publish(ctx, &pubsub.Message{
		Data:        msgJSON,
		OrderingKey: orderingKey,
		Attributes: map[string]string{
			"type":           msg.Type,
			"correlation_id": msg.CorrelationId,
		},
	})
	id, err := result.Get(ctx)
	if err != nil {
		// ordered publishing pauses a key after a failure until resumed
		t.ResumePublish(orderingKey)
	}
	return id, err
}
