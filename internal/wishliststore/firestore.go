package wishliststore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"storefront-sync/internal/gateway"
	"storefront-sync/internal/model"
	"storefront-sync/internal/wishlist"
)

// record is the Firestore document shape.
type record struct {
	ProductIDs []string  `firestore:"productIds"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

// Firestore stores one document per owner, keyed by the owner's lower-cased email.
type Firestore struct {
	client     *firestore.Client
	collection string
	catalog    gateway.CatalogAPI
}

// NewFirestoreClient opens a Firestore client. credentialsFile may be empty
// to use Application Default Credentials.
func NewFirestoreClient(ctx context.Context, projectID, credentialsFile string) (*firestore.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client (project=%s): %w", projectID, err)
	}
	return client, nil
}

// NewFirestore wraps client. An empty collection uses DefaultCollection.
func NewFirestore(client *firestore.Client, collection string, catalog gateway.CatalogAPI) *Firestore {
	if collection == "" {
		collection = DefaultCollection
	}
	return &Firestore{client: client, collection: collection, catalog: catalog}
}

func (f *Firestore) doc(owner string) *firestore.DocumentRef {
	return f.client.Collection(f.collection).Doc(model.NormalizeEmail(owner))
}

// List returns owner's product ids. A missing document is an empty wishlist.
func (f *Firestore) List(ctx context.Context, owner string) ([]string, error) {
	if err := validate(owner, "-"); err != nil {
		return nil, err
	}

	snap, err := f.doc(owner).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return []string{}, nil
	}
	if err != nil {
		return nil, mapError(err)
	}

	var rec record
	if err := snap.DataTo(&rec); err != nil {
		return nil, model.NewNetworkError("firestore", fmt.Errorf("decoding wishlist: %w", err))
	}
	if rec.ProductIDs == nil {
		rec.ProductIDs = []string{}
	}
	return rec.ProductIDs, nil
}

// Add puts productID into owner's document, creating it if needed.
func (f *Firestore) Add(ctx context.Context, owner, productID string) error {
	if err := validate(owner, productID); err != nil {
		return err
	}
	if err := checkAvailable(ctx, f.catalog, productID); err != nil {
		return err
	}

	_, err := f.doc(owner).Set(ctx, map[string]any{
		"productIds": firestore.ArrayUnion(productID),
		"updatedAt":  firestore.ServerTimestamp,
	}, firestore.MergeAll)
	return mapError(err)
}

// Remove takes productID out of owner's document. A missing document is fine.
func (f *Firestore) Remove(ctx context.Context, owner, productID string) error {
	if err := validate(owner, productID); err != nil {
		return err
	}

	_, err := f.doc(owner).Update(ctx, []firestore.Update{
		{Path: "productIds", Value: firestore.ArrayRemove(productID)},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	})
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return mapError(err)
}

// mapError converts gRPC status errors into RemoteErrors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return model.NewValidationError(status.Code(err).String(), status.Convert(err).Message())
	case codes.PermissionDenied, codes.Unauthenticated:
		return model.NewUnauthorizedError(status.Convert(err).Message())
	default:
		return model.NewNetworkError("firestore", err)
	}
}

// Verify Firestore implements RemoteStore interface at compile time.
var _ wishlist.RemoteStore = (*Firestore)(nil)
