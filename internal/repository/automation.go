package repository

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	"subscriptionOpsAPI/internal/automation"
)

type AutomationRepository struct {
	client *firestore.Client
}

func NewAutomationRepository(client *firestore.Client) *AutomationRepository {
	return &AutomationRepository{client: client}
}

func (r *AutomationRepository) configDoc() *firestore.DocumentRef {
	return r.client.Collection(CollectionSettings).Doc("automation")
}

// GetConfig returns nil without error when no configuration was saved yet.
func (r *AutomationRepository) GetConfig(ctx context.Context) (*automation.Config, error) {
	snap, err := r.configDoc().Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read automation config: %w", err)
	}
	var c automation.Config
	if err := snap.DataTo(&c); err != nil {
		return nil, fmt.Errorf("failed to decode automation config: %w", err)
	}
	return &c, nil
}

func (r *AutomationRepository) SaveConfig(ctx context.Context, c automation.Config) error {
	if _, err := r.configDoc().Set(ctx, c); err != nil {
		return fmt.Errorf("failed to save automation config: %w", err)
	}
	return nil
}

func (r *AutomationRepository) DeleteConfig(ctx context.Context) error {
	if _, err := r.configDoc().Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete automation config: %w", err)
	}
	return nil
}

func (r *AutomationRepository) InsertLog(ctx context.Context, entry automation.RunLog) error {
	if _, _, err := r.client.Collection(CollectionAutomationLogs).Add(ctx, entry); err != nil {
		return fmt.Errorf("failed to write automation log: %w", err)
	}
	return nil
}
