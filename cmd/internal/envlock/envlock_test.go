package envlock_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/basewarphq/bwpromote/cmd/internal/envlock"
	"github.com/basewarphq/bwpromote/cmd/internal/promoerr"
	"github.com/cockroachdb/errors"
)

type object struct {
	body []byte
	etag string
}

// fakeS3 honors If-None-Match on put and If-Match on delete.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]object
	serial  int
	denied  bool
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]object)}
}

func preconditionFailed() error {
	return &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.denied {
		return nil, &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}
	}
	key := aws.ToString(in.Key)
	if aws.ToString(in.IfNoneMatch) == "*" {
		if _, ok := f.objects[key]; ok {
			return nil, preconditionFailed()
		}
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.serial++
	etag := fmt.Sprintf("\"etag-%d\"", f.serial)
	f.objects[key] = object{body: body, etag: etag}
	return &s3.PutObjectOutput{ETag: aws.String(etag)}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(obj.body)),
		ETag: aws.String(obj.etag),
	}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Key)
	if in.IfMatch != nil {
		if obj, ok := f.objects[key]; !ok || obj.etag != *in.IfMatch {
			return nil, preconditionFailed()
		}
	}
	delete(f.objects, key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestAcquireRelease(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := envlock.NewStore(newFakeS3(), "locks")

	if err := store.Acquire(ctx, "test", "tok-a", "run-1"); err != nil {
		t.Fatal(err)
	}
	info, err := store.Get(ctx, "test")
	if err != nil {
		t.Fatal(err)
	}
	if info == nil || info.Token != "tok-a" || info.Label != "run-1" {
		t.Fatalf("Get = %+v", info)
	}
	if info.ClaimedAt == "" {
		t.Error("ClaimedAt is empty")
	}

	if err := store.Release(ctx, "test", "tok-a"); err != nil {
		t.Fatal(err)
	}
	info, err = store.Get(ctx, "test")
	if err != nil {
		t.Fatal(err)
	}
	if info != nil {
		t.Errorf("lock still present after release: %+v", info)
	}
}

func TestAcquireHeld(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := envlock.NewStore(newFakeS3(), "locks")

	if err := store.Acquire(ctx, "prod", "tok-a", "run-1"); err != nil {
		t.Fatal(err)
	}
	err := store.Acquire(ctx, "prod", "tok-b", "run-2")
	if !errors.Is(err, promoerr.ErrLockHeld) {
		t.Fatalf("got %v, want ErrLockHeld", err)
	}
	if want := "environment prod is locked by run-1"; err.Error() != want {
		t.Errorf("message = %q, want %q", err.Error(), want)
	}

	// Locks are per environment.
	if err := store.Acquire(ctx, "test", "tok-b", "run-2"); err != nil {
		t.Errorf("acquiring another environment: %v", err)
	}
}

func TestReleaseWrongToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := envlock.NewStore(newFakeS3(), "locks")

	if err := store.Acquire(ctx, "test", "tok-a", "run-1"); err != nil {
		t.Fatal(err)
	}
	if err := store.Release(ctx, "test", "tok-b"); !errors.Is(err, envlock.ErrTokenMismatch) {
		t.Fatalf("got %v, want ErrTokenMismatch", err)
	}
	if info, _ := store.Get(ctx, "test"); info == nil {
		t.Error("lock was released by the wrong token")
	}
}

func TestReleaseNotLocked(t *testing.T) {
	t.Parallel()
	store := envlock.NewStore(newFakeS3(), "locks")
	err := store.Release(context.Background(), "test", "tok-a")
	if !errors.Is(err, envlock.ErrNotLocked) {
		t.Errorf("got %v, want ErrNotLocked", err)
	}
}

func TestForceRelease(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := envlock.NewStore(newFakeS3(), "locks")

	if err := store.Acquire(ctx, "test", "tok-a", "run-1"); err != nil {
		t.Fatal(err)
	}
	if err := store.ForceRelease(ctx, "test"); err != nil {
		t.Fatal(err)
	}
	if err := store.Acquire(ctx, "test", "tok-b", "run-2"); err != nil {
		t.Errorf("re-acquire after force release: %v", err)
	}
	// The original holder must not release the new holder's lock.
	if err := store.Release(ctx, "test", "tok-a"); !errors.Is(err, envlock.ErrTokenMismatch) {
		t.Errorf("got %v, want ErrTokenMismatch", err)
	}
}

func TestAcquireAccessDenied(t *testing.T) {
	t.Parallel()
	fake := newFakeS3()
	fake.denied = true
	err := envlock.NewStore(fake, "locks").Acquire(context.Background(), "test", "tok", "run-1")
	if !errors.Is(err, promoerr.ErrInsufficientPermissions) {
		t.Errorf("got %v, want ErrInsufficientPermissions", err)
	}
}

func TestKey(t *testing.T) {
	t.Parallel()
	if got := envlock.Key("prod"); got != "env-locks/prod.lock" {
		t.Errorf("Key = %q", got)
	}
}
