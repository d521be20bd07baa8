package repo

import (
	"PromptBot/model"
	"context"
	"fmt"
	"sort"
	"strconv"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"google.golang.org/api/option"
)

const generationsPath = "generations"

// GenerationArchive keeps a history of submitted prompts and delivered images.
type GenerationArchive interface {
	CreateGeneration(ctx context.Context, generation model.Generation) (string, error)
	AddImage(ctx context.Context, key string, index int, ref string) error
	MarkFailed(ctx context.Context, key string) error
	ListGenerationsByUser(ctx context.Context, userID int64) ([]model.Generation, error)
}

// FirebaseConnector struct to hold the Realtime Database client
type FirebaseConnector struct {
	client *db.Client
}

// NewFirebaseConnector creates a new Firebase connector. With an empty
// serviceAccountKeyPath the application default credentials are used.
func NewFirebaseConnector(ctx context.Context, serviceAccountKeyPath string, databaseURL string) (*FirebaseConnector, error) {
	var opts []option.ClientOption
	if serviceAccountKeyPath != "" {
		opts = append(opts, option.WithCredentialsFile(serviceAccountKeyPath))
	}

	config := &firebase.Config{
		DatabaseURL: databaseURL,
	}
	app, err := firebase.NewApp(ctx, config, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting database client: %w", err)
	}

	return &FirebaseConnector{
		client: client,
	}, nil
}

// CreateGeneration stores a new generation and returns its database key
func (fc *FirebaseConnector) CreateGeneration(ctx context.Context, generation model.Generation) (string, error) {
	ref := fc.client.NewRef(generationsPath)
	newRef, err := ref.Push(ctx, generation)
	if err != nil {
		return "", fmt.Errorf("error creating generation: %w", err)
	}
	return newRef.Key, nil
}

// AddImage records the index-th image of a generation
func (fc *FirebaseConnector) AddImage(ctx context.Context, key string, index int, ref string) error {
	imageRef := fc.client.NewRef(generationsPath).Child(key).Child("images").Child(strconv.Itoa(index))
	if err := imageRef.Set(ctx, ref); err != nil {
		return fmt.Errorf("error adding image to generation %s: %w", key, err)
	}
	return nil
}

// MarkFailed flags a generation whose backend call failed
func (fc *FirebaseConnector) MarkFailed(ctx context.Context, key string) error {
	ref := fc.client.NewRef(generationsPath).Child(key)
	if err := ref.Update(ctx, map[string]interface{}{"failed": true}); err != nil {
		return fmt.Errorf("error marking generation %s failed: %w", key, err)
	}
	return nil
}

// ListGenerationsByUser lists a user's generations, newest first
func (fc *FirebaseConnector) ListGenerationsByUser(ctx context.Context, userID int64) ([]model.Generation, error) {
	query := fc.client.NewRef(generationsPath).OrderByChild("userId").EqualTo(userID)
	var generations map[string]model.Generation
	if err := query.Get(ctx, &generations); err != nil {
		return nil, fmt.Errorf("error listing generations: %w", err)
	}
	return sortGenerations(generations), nil
}

func sortGenerations(generations map[string]model.Generation) []model.Generation {
	list := make([]model.Generation, 0, len(generations))
	for key, generation := range generations {
		generation.DocumentID = key
		list = append(list, generation)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list
}
