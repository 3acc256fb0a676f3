// Package envlock serializes deploy stages per environment with S3 objects.
//
// A lock is an object created with If-None-Match: *, so only one writer can
// hold it. Release deletes the object only while it still carries the holder's
// token, which keeps a slow runner from releasing a lock that was forced and
// re-acquired by someone else.
package envlock

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/basewarphq/bwpromote/cmd/internal/promoerr"
	"github.com/cockroachdb/errors"
)

var (
	ErrNotLocked     = errors.New("environment is not locked")
	ErrTokenMismatch = errors.New("token does not match")
)

const keyPrefix = "env-locks/"

type LockInfo struct {
	Token     string `json:"token"`
	Label     string `json:"label"`
	ClaimedAt string `json:"claimed_at"`
}

type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type Store struct {
	client S3API
	bucket string
	now    func() time.Time
}

func NewStore(client S3API, bucket string) *Store {
	return &Store{client: client, bucket: bucket, now: time.Now}
}

func Key(env string) string {
	return keyPrefix + env + ".lock"
}

// Acquire takes the lock for env. It fails with promoerr.ErrLockHeld when
// another holder has it.
func (s *Store) Acquire(ctx context.Context, env, token, label string) error {
	body, err := json.Marshal(LockInfo{
		Token:     token,
		Label:     label,
		ClaimedAt: s.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return errors.Wrap(err, "marshaling lock info")
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(Key(env)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		if isPreconditionFailed(err) {
			holder := "another run"
			if info, _, getErr := s.get(ctx, env); getErr == nil && info != nil {
				holder = info.Label
			}
			return errors.Mark(
				errors.Newf("environment %s is locked by %s", env, holder),
				promoerr.ErrLockHeld)
		}
		return promoerr.ClassifyAWS(err, "locking environment "+env)
	}
	return nil
}

// Release drops the lock for env if token still holds it.
func (s *Store) Release(ctx context.Context, env, token string) error {
	info, etag, err := s.get(ctx, env)
	if err != nil {
		return err
	}
	if info == nil {
		return errors.Mark(errors.Newf("environment %s is not locked", env), ErrNotLocked)
	}
	if info.Token != token {
		return errors.Mark(
			errors.Newf("environment %s is locked by %s", env, info.Label),
			ErrTokenMismatch)
	}
	return s.delete(ctx, env, etag)
}

// ForceRelease drops the lock for env regardless of its holder.
func (s *Store) ForceRelease(ctx context.Context, env string) error {
	info, etag, err := s.get(ctx, env)
	if err != nil {
		return err
	}
	if info == nil {
		return errors.Mark(errors.Newf("environment %s is not locked", env), ErrNotLocked)
	}
	return s.delete(ctx, env, etag)
}

// Get returns the current holder of env's lock, or nil when unlocked.
func (s *Store) Get(ctx context.Context, env string) (*LockInfo, error) {
	info, _, err := s.get(ctx, env)
	return info, err
}

func (s *Store) get(ctx context.Context, env string) (*LockInfo, string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(Key(env)),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, "", nil
		}
		return nil, "", promoerr.ClassifyAWS(err, "reading lock for "+env)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", errors.Wrapf(err, "reading lock for %s", env)
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, "", errors.Wrapf(err, "parsing lock for %s", env)
	}
	return &info, aws.ToString(out.ETag), nil
}

func (s *Store) delete(ctx context.Context, env, etag string) error {
	in := &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(Key(env)),
	}
	if etag != "" {
		in.IfMatch = aws.String(etag)
	}
	if _, err := s.client.DeleteObject(ctx, in); err != nil {
		if isPreconditionFailed(err) {
			return errors.Mark(
				errors.Newf("lock for %s changed while releasing", env),
				ErrTokenMismatch)
		}
		return promoerr.ClassifyAWS(err, "deleting lock for "+env)
	}
	return nil
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.ErrorCode() == "PreconditionFailed"
}
