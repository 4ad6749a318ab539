package repository

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	"subscriptionOpsAPI/internal/apperrors"
	"subscriptionOpsAPI/internal/client"
)

type ClientRepository struct {
	client *firestore.Client
}

func NewClientRepository(c *firestore.Client) *ClientRepository {
	return &ClientRepository{client: c}
}

func (r *ClientRepository) col() *firestore.CollectionRef {
	return r.client.Collection(CollectionClients)
}

func decodeClients(snaps []*firestore.DocumentSnapshot) ([]*client.Client, error) {
	out := make([]*client.Client, 0, len(snaps))
	for _, snap := range snaps {
		var c client.Client
		if err := snap.DataTo(&c); err != nil {
			return nil, fmt.Errorf("failed to decode client %s: %w", snap.Ref.ID, err)
		}
		c.ID = snap.Ref.ID
		out = append(out, &c)
	}
	return out, nil
}

func (r *ClientRepository) Get(ctx context.Context, id string) (*client.Client, error) {
	snap, err := r.col().Doc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, apperrors.NotFoundf("client %s not found", id)
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	out, err := decodeClients([]*firestore.DocumentSnapshot{snap})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (r *ClientRepository) findOne(ctx context.Context, field, value string) (*client.Client, error) {
	snaps, err := r.col().Where(field, "==", value).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query clients by %s: %w", field, err)
	}
	if len(snaps) == 0 {
		return nil, apperrors.NotFoundf("no client with %s %s", field, value)
	}
	out, err := decodeClients(snaps)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (r *ClientRepository) FindByUID(ctx context.Context, uid string) (*client.Client, error) {
	return r.findOne(ctx, "uid", uid)
}

func (r *ClientRepository) FindByPhone(ctx context.Context, phone string) (*client.Client, error) {
	return r.findOne(ctx, "phone", phone)
}

func (r *ClientRepository) ListByUID(ctx context.Context, uid string) ([]*client.Client, error) {
	snaps, err := r.col().Where("uid", "==", uid).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query clients by uid: %w", err)
	}
	return decodeClients(snaps)
}

func (r *ClientRepository) Create(ctx context.Context, c *client.Client) (*client.Client, error) {
	if len(c.Roles) == 0 {
		c.Roles = []string{client.RoleClient}
	}
	ref := r.col().NewDoc()
	if _, err := ref.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return r.Get(ctx, ref.ID)
}

func (r *ClientRepository) update(ctx context.Context, id string, updates []firestore.Update) error {
	updates = append(updates, firestore.Update{Path: "updatedAt", Value: firestore.ServerTimestamp})
	if _, err := r.col().Doc(id).Update(ctx, updates); err != nil {
		if isNotFound(err) {
			return apperrors.NotFoundf("client %s not found", id)
		}
		return fmt.Errorf("failed to update client: %w", err)
	}
	return nil
}

func (r *ClientRepository) Patch(ctx context.Context, id string, req *client.UpdateRequest) error {
	var updates []firestore.Update
	if req.Name != nil {
		updates = append(updates, firestore.Update{Path: "name", Value: *req.Name})
	}
	if req.Phone != nil {
		updates = append(updates, firestore.Update{Path: "phone", Value: *req.Phone})
	}
	if req.Address != nil {
		updates = append(updates, firestore.Update{Path: "address", Value: *req.Address})
	}
	return r.update(ctx, id, updates)
}

// Promote turns a prospect into a registered client in one atomic batch:
// identity and name are replaced and the lead role is swapped for client.
func (r *ClientRepository) Promote(ctx context.Context, id string, req *client.CreateRequest) error {
	ref := r.col().Doc(id)
	updates := []firestore.Update{
		{Path: "uid", Value: req.UID},
		{Path: "name", Value: req.Name},
		{Path: "roles", Value: firestore.ArrayRemove(client.RoleLead)},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	}
	if req.Address != "" {
		updates = append(updates, firestore.Update{Path: "address", Value: req.Address})
	}

	// Firestore rejects two transforms on one field in a single update, so
	// the role swap is split across two writes of the same batch.
	batch := r.client.Batch()
	batch.Update(ref, updates)
	batch.Update(ref, []firestore.Update{{Path: "roles", Value: firestore.ArrayUnion(client.RoleClient)}})
	if _, err := batch.Commit(ctx); err != nil {
		if isNotFound(err) {
			return apperrors.NotFoundf("client %s not found", id)
		}
		return fmt.Errorf("failed to promote client: %w", err)
	}
	return nil
}

// Relink points an existing client record at a different identity uid.
func (r *ClientRepository) Relink(ctx context.Context, id, uid string) error {
	return r.update(ctx, id, []firestore.Update{{Path: "uid", Value: uid}})
}

func (r *ClientRepository) DeleteMany(ctx context.Context, ids []string) error {
	refs := make([]*firestore.DocumentRef, len(ids))
	for i, id := range ids {
		refs[i] = r.col().Doc(id)
	}
	return deleteAll(ctx, r.client, refs)
}

func (r *ClientRepository) List(ctx context.Context, limit int, startAfter string) ([]*client.Client, string, error) {
	size := pageSize(limit)
	q, err := cursorQuery(ctx, r.col(), r.col().OrderBy("createdAt", firestore.Desc), startAfter)
	if err != nil {
		return nil, "", err
	}
	snaps, err := q.Limit(size).Documents(ctx).GetAll()
	if err != nil {
		return nil, "", fmt.Errorf("failed to list clients: %w", err)
	}
	items, err := decodeClients(snaps)
	if err != nil {
		return nil, "", err
	}
	var next string
	if len(items) == size {
		next = items[len(items)-1].ID
	}
	return items, next, nil
}

// DeleteRelated removes every subscription whose clientId is one of keys and
// every payment of those subscriptions. It returns how many documents were
// deleted.
func (r *ClientRepository) DeleteRelated(ctx context.Context, keys []string) (int, error) {
	var refs []*firestore.DocumentRef
	var subscriptionIDs []string

	subs := r.client.Collection(CollectionSubscriptions)
	for _, chunk := range chunks(keys, maxInValues) {
		snaps, err := subs.Where("clientId", "in", chunk).Documents(ctx).GetAll()
		if err != nil {
			return 0, fmt.Errorf("failed to find client subscriptions: %w", err)
		}
		for _, snap := range snaps {
			refs = append(refs, snap.Ref)
			subscriptionIDs = append(subscriptionIDs, snap.Ref.ID)
		}
	}

	payments := r.client.Collection(CollectionPayments)
	for _, chunk := range chunks(subscriptionIDs, maxInValues) {
		snaps, err := payments.Where("subscriptionId", "in", chunk).Documents(ctx).GetAll()
		if err != nil {
			return 0, fmt.Errorf("failed to find subscription payments: %w", err)
		}
		for _, snap := range snaps {
			refs = append(refs, snap.Ref)
		}
	}

	if err := deleteAll(ctx, r.client, refs); err != nil {
		return 0, err
	}
	return len(refs), nil
}
