package config

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/joho/godotenv"
	"google.golang.org/api/option"
)

// StockLedgerMessage is the wire payload published for every committed
// batch-ledger mutation (assignment, transfer, adjustment, registration).
type StockLedgerMessage struct {
	ID            int       `json:"id"`
	BranchId      int       `json:"branch_id"`
	EventTime     time.Time `json:"event_time"`
	ReferenceId   int       `json:"reference_id"`
	ReferenceType string    `json:"reference_type"`
	Action        string    `json:"action"`
	Payload       []byte    `json:"payload"`
	CorrelationId string    `json:"correlation_id"`
}

var (
	pubsubClient   *pubsub.Client
	pubsubClientMu sync.Mutex
)

func init() {
	// Load env from .env
	godotenv.Load()
}

func getPubSubProjectID() string {
	if v := os.Getenv("PUBSUB_PROJECT_ID"); v != "" {
		return v
	}
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		return v
	}
	if v := os.Getenv("GCP_PROJECT"); v != "" {
		return v
	}
	return ""
}

// GetPubSubClient returns the shared Pub/Sub client, initializing it on first
// use. It uses Application Default Credentials unless PUBSUB_CREDENTIALS_JSON
// is provided.
func GetPubSubClient(ctx context.Context) (*pubsub.Client, error) {
	pubsubClientMu.Lock()
	defer pubsubClientMu.Unlock()
	if pubsubClient != nil {
		return pubsubClient, nil
	}

	projectID := getPubSubProjectID()
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}

	var opts []option.ClientOption
	if credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON"); credJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, err
	}
	pubsubClient = client
	return pubsubClient, nil
}

// StockLedgerTopic returns the topic stock ledger events are published to.
func StockLedgerTopic(ctx context.Context) (*pubsub.Topic, error) {
	client, err := GetPubSubClient(ctx)
	if err != nil {
		return nil, err
	}
	topicID := os.Getenv("STOCK_LEDGER_TOPIC")
	if topicID == "" {
		topicID = "stock-ledger-events"
	}
	return client.Topic(topicID), nil
}

// PublishStockLedgerMessage publishes one ledger event and waits for the
// server ack so the outbox dispatcher can mark the row processed.
func PublishStockLedgerMessage(ctx context.Context, data []byte, attrs map[string]string) error {
	topic, err := StockLedgerTopic(ctx)
	if err != nil {
		return err
	}
	result := topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	id, err := result.Get(ctx)
	if err != nil {
		return err
	}
	log.Printf("published stock ledger message id=%s", id)
	return nil
}
