package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Encoder serialises the entity prior to persistence.
type Encoder[T any] func(value T) (any, error)

// Decoder hydrates the entity from a snapshot.
type Decoder[T any] func(snap *firestore.DocumentSnapshot) (T, error)

// QueryBuilder customises Firestore queries before execution.
type QueryBuilder func(query firestore.Query) firestore.Query

// Collection provides typed document access for one Firestore collection.
type Collection[T any] struct {
	provider *Provider
	name     string
	encode   Encoder[T]
	decode   Decoder[T]
}

// NewCollection binds typed helpers to a collection. Nil codecs default to native struct mapping.
func NewCollection[T any](provider *Provider, name string, encode Encoder[T], decode Decoder[T]) *Collection[T] {
	if encode == nil {
		encode = func(value T) (any, error) { return value, nil }
	}
	if decode == nil {
		decode = func(snap *firestore.DocumentSnapshot) (T, error) {
			var target T
			err := snap.DataTo(&target)
			return target, err
		}
	}
	return &Collection[T]{provider: provider, name: strings.TrimSpace(name), encode: encode, decode: decode}
}

// Set upserts the document under id.
func (c *Collection[T]) Set(ctx context.Context, id string, value T) error {
	doc, err := c.doc(ctx, id)
	if err != nil {
		return err
	}
	payload, err := c.encode(value)
	if err != nil {
		return fmt.Errorf("firestore: encode document %s: %w", id, err)
	}
	if _, err := doc.Set(ctx, payload); err != nil {
		return wrapError(c.op("set", id), err)
	}
	return nil
}

// Get returns the decoded document; a missing document is reported as an *Error with IsNotFound.
func (c *Collection[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	doc, err := c.doc(ctx, id)
	if err != nil {
		return zero, err
	}
	snap, err := doc.Get(ctx)
	if err != nil {
		return zero, wrapError(c.op("get", id), err)
	}
	value, err := c.decode(snap)
	if err != nil {
		return zero, fmt.Errorf("firestore: decode document %s: %w", id, err)
	}
	return value, nil
}

// Delete removes the document. Firestore treats deleting a missing document as success.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	doc, err := c.doc(ctx, id)
	if err != nil {
		return err
	}
	if _, err := doc.Delete(ctx); err != nil {
		return wrapError(c.op("delete", id), err)
	}
	return nil
}

// Query runs build against the collection and decodes every returned document.
func (c *Collection[T]) Query(ctx context.Context, build QueryBuilder) ([]T, error) {
	coll, err := c.collection(ctx)
	if err != nil {
		return nil, err
	}
	query := coll.Query
	if build != nil {
		query = build(query)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var out []T
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, wrapError(c.op("query", ""), err)
		}
		value, err := c.decode(snap)
		if err != nil {
			return nil, fmt.Errorf("firestore: decode document %s: %w", snap.Ref.ID, err)
		}
		out = append(out, value)
	}
}

func (c *Collection[T]) collection(ctx context.Context) (*firestore.CollectionRef, error) {
	if c == nil || c.provider == nil {
		return nil, wrapError(c.op("collection", ""), errors.New("provider is nil"))
	}
	if c.name == "" {
		return nil, wrapError(c.op("collection", ""), errors.New("collection name is required"))
	}
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(c.name), nil
}

func (c *Collection[T]) doc(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, wrapError(c.op("document", id), errors.New("document id is required"))
	}
	coll, err := c.collection(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

func (c *Collection[T]) op(action, id string) Op {
	op := Op{Action: action, DocumentID: id}
	if c != nil {
		op.Collection = c.name
	}
	return op
}
