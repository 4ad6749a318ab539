// Package repository holds the Firestore accessors behind the services.
package repository

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"subscriptionOpsAPI/internal/apperrors"
)

const (
	CollectionSubscriptions  = "subscriptions"
	CollectionPayments       = "payments"
	CollectionClients        = "clients"
	CollectionConversations  = "conversations"
	CollectionAutomationLogs = "automationLogs"
	CollectionSettings       = "settings"

	// Firestore caps both batched writes and "in" filters.
	maxBatchWrites = 500
	maxInValues    = 30

	defaultPageSize = 100
)

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// cursorQuery positions q after the document startAfter in col. An unknown
// cursor is a client error, not an empty page.
func cursorQuery(ctx context.Context, col *firestore.CollectionRef, q firestore.Query, startAfter string) (firestore.Query, error) {
	if startAfter == "" {
		return q, nil
	}
	snap, err := col.Doc(startAfter).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return q, apperrors.Validationf("invalid cursor")
		}
		return q, fmt.Errorf("failed to load cursor: %w", err)
	}
	return q.StartAfter(snap), nil
}

func pageSize(limit int) int {
	if limit <= 0 || limit > defaultPageSize {
		return defaultPageSize
	}
	return limit
}

func count(ctx context.Context, q firestore.Query) (int, error) {
	res, err := q.NewAggregationQuery().WithCount("all").Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	v, ok := res["all"].(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("unexpected count result %T", res["all"])
	}
	return int(v.GetIntegerValue()), nil
}

// deleteAll removes refs in as many batches as Firestore requires.
func deleteAll(ctx context.Context, client *firestore.Client, refs []*firestore.DocumentRef) error {
	for start := 0; start < len(refs); start += maxBatchWrites {
		end := min(start+maxBatchWrites, len(refs))
		batch := client.Batch()
		for _, ref := range refs[start:end] {
			batch.Delete(ref)
		}
		if _, err := batch.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit delete batch: %w", err)
		}
	}
	return nil
}

func chunks(values []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(values); start += size {
		out = append(out, values[start:min(start+size, len(values))])
	}
	return out
}
