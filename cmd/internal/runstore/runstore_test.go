package runstore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/basewarphq/bwpromote/cmd/internal/pipeline"
	"github.com/basewarphq/bwpromote/cmd/internal/promoerr"
	"github.com/basewarphq/bwpromote/cmd/internal/runstore"
	"github.com/cockroachdb/errors"
)

// fakeDynamo implements the two condition expressions the store uses.
type fakeDynamo struct {
	mu     sync.Mutex
	items  map[string]map[string]types.AttributeValue
	denied bool
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func (f *fakeDynamo) PutItem(
	_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options),
) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.denied {
		return nil, &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "denied"}
	}
	id := in.Item["runId"].(*types.AttributeValueMemberS).Value
	existing, exists := f.items[id]

	switch *in.ConditionExpression {
	case "attribute_not_exists(#id)":
		if exists {
			return nil, &types.ConditionalCheckFailedException{Message: new(string)}
		}
	case "#v = :prev":
		prev := in.ExpressionAttributeValues[":prev"].(*types.AttributeValueMemberN).Value
		if !exists || existing["version"].(*types.AttributeValueMemberN).Value != prev {
			return nil, &types.ConditionalCheckFailedException{Message: new(string)}
		}
	}
	f.items[id] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(
	_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options),
) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := in.Key["runId"].(*types.AttributeValueMemberS).Value
	return &dynamodb.GetItemOutput{Item: f.items[id]}, nil
}

func stores() map[string]func() pipeline.Store {
	return map[string]func() pipeline.Store{
		"memory": func() pipeline.Store { return runstore.NewMemory() },
		"dynamo": func() pipeline.Store { return runstore.NewDynamo(newFakeDynamo(), "promote-runs") },
	}
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()
	for name, newStore := range stores() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			store := newStore()

			run := pipeline.NewRun("r1", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
			if err := store.Create(ctx, run); err != nil {
				t.Fatal(err)
			}
			run.Revision = "abc123"
			if err := run.Advance([]string{"test", "prod"}, pipeline.Position{Phase: pipeline.PhaseSource}, run.CreatedAt); err != nil {
				t.Fatal(err)
			}
			if err := store.Update(ctx, run); err != nil {
				t.Fatal(err)
			}

			got, err := store.Get(ctx, "r1")
			if err != nil {
				t.Fatal(err)
			}
			if got.Revision != "abc123" || got.Position.Phase != pipeline.PhaseSource {
				t.Errorf("got %+v", got)
			}
			if got.Version != 2 || run.Version != 2 {
				t.Errorf("versions = stored %d, local %d, want 2", got.Version, run.Version)
			}
			if !got.CreatedAt.Equal(run.CreatedAt) {
				t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, run.CreatedAt)
			}
		})
	}
}

func TestStoreDetectsStaleUpdate(t *testing.T) {
	t.Parallel()
	for name, newStore := range stores() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			store := newStore()

			if err := store.Create(ctx, pipeline.NewRun("r1", time.Now())); err != nil {
				t.Fatal(err)
			}
			a, _ := store.Get(ctx, "r1")
			b, _ := store.Get(ctx, "r1")

			a.Revision = "first"
			if err := store.Update(ctx, a); err != nil {
				t.Fatal(err)
			}
			b.Revision = "second"
			err := store.Update(ctx, b)
			if !errors.Is(err, promoerr.ErrRunConflict) {
				t.Fatalf("got %v, want ErrRunConflict", err)
			}
			if b.Version != 1 {
				t.Errorf("failed update changed the local version to %d", b.Version)
			}

			got, _ := store.Get(ctx, "r1")
			if got.Revision != "first" {
				t.Errorf("Revision = %q, the stale write must not land", got.Revision)
			}
		})
	}
}

func TestStoreCreateTwiceConflicts(t *testing.T) {
	t.Parallel()
	for name, newStore := range stores() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			store := newStore()
			if err := store.Create(ctx, pipeline.NewRun("r1", time.Now())); err != nil {
				t.Fatal(err)
			}
			if err := store.Create(ctx, pipeline.NewRun("r1", time.Now())); !errors.Is(err, promoerr.ErrRunConflict) {
				t.Errorf("got %v, want ErrRunConflict", err)
			}
		})
	}
}

func TestStoreGetMissing(t *testing.T) {
	t.Parallel()
	for name, newStore := range stores() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := newStore().Get(context.Background(), "nope")
			if !errors.Is(err, promoerr.ErrRunNotFound) {
				t.Errorf("got %v, want ErrRunNotFound", err)
			}
		})
	}
}

func TestDynamoAccessDenied(t *testing.T) {
	t.Parallel()
	fake := newFakeDynamo()
	fake.denied = true
	err := runstore.NewDynamo(fake, "promote-runs").Create(context.Background(), pipeline.NewRun("r1", time.Now()))
	if !errors.Is(err, promoerr.ErrInsufficientPermissions) {
		t.Errorf("got %v, want ErrInsufficientPermissions", err)
	}
}
