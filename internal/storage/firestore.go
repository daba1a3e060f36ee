package storage

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/dgellow/soporify/internal/log"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var _ Store = (*FirestoreStore)(nil)
var _ Lister = (*FirestoreStore)(nil)

// FirestoreConfig configures the Firestore backend
type FirestoreConfig struct {
	ProjectID  string
	Database   string
	Collection string
}

// FirestoreStore keeps one document per key in a single collection.
// Unlike the local stores every error is surfaced: a token that silently
// failed to persist would force the user through consent again.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// valueDoc is the document layout
type valueDoc struct {
	Value     string    `firestore:"value"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

// NewFirestoreStore creates a Firestore client for the configured project
func NewFirestoreStore(ctx context.Context, cfg FirestoreConfig) (*FirestoreStore, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	var client *firestore.Client
	var err error
	if cfg.Database != "" && cfg.Database != "(default)" {
		client, err = firestore.NewClientWithDatabase(ctx, cfg.ProjectID, cfg.Database)
	} else {
		client, err = firestore.NewClient(ctx, cfg.ProjectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	log.LogInfoWithFields("storage", "Connected to Firestore", map[string]any{
		"project":    cfg.ProjectID,
		"database":   cfg.Database,
		"collection": cfg.Collection,
	})

	return &FirestoreStore{client: client, collection: cfg.Collection}, nil
}

func (s *FirestoreStore) doc(key string) (*firestore.DocumentRef, error) {
	if key == "" || strings.Contains(key, "/") {
		return nil, fmt.Errorf("invalid firestore key %q", key)
	}
	return s.client.Collection(s.collection).Doc(key), nil
}

func (s *FirestoreStore) Get(ctx context.Context, key string) (string, error) {
	ref, err := s.doc(key)
	if err != nil {
		return "", err
	}

	snap, err := ref.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s from Firestore: %w", key, err)
	}

	var d valueDoc
	if err := snap.DataTo(&d); err != nil {
		return "", fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return d.Value, nil
}

func (s *FirestoreStore) Set(ctx context.Context, key, value string) error {
	ref, err := s.doc(key)
	if err != nil {
		return err
	}
	if _, err := ref.Set(ctx, valueDoc{Value: value, UpdatedAt: time.Now()}); err != nil {
		return fmt.Errorf("failed to store %s in Firestore: %w", key, err)
	}
	return nil
}

func (s *FirestoreStore) Remove(ctx context.Context, key string) error {
	ref, err := s.doc(key)
	if err != nil {
		return err
	}
	// Delete of a missing document succeeds
	if _, err := ref.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete %s from Firestore: %w", key, err)
	}
	return nil
}

func (s *FirestoreStore) Keys(ctx context.Context) ([]string, error) {
	iter := s.client.Collection(s.collection).Documents(ctx)
	defer iter.Stop()

	var keys []string
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating Firestore documents: %w", err)
		}
		keys = append(keys, snap.Ref.ID)
	}
	slices.Sort(keys)
	return keys, nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
