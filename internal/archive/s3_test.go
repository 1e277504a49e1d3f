package archive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestArchive_UploadsWithDatedKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ig_ABC_0_1234abcd.jpg")
	if err := os.WriteFile(path, []byte("jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}

	putter := &fakePutter{}
	a := NewWithClient(putter, "media-bucket", "/instagram/", testLogger())
	a.now = func() time.Time { return time.Date(2026, 3, 9, 23, 0, 0, 0, time.UTC) }

	if err := a.Archive(context.Background(), path); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}

	if got := aws.ToString(putter.input.Bucket); got != "media-bucket" {
		t.Errorf("Bucket = %q", got)
	}
	if got := aws.ToString(putter.input.Key); got != "instagram/2026/03/09/ig_ABC_0_1234abcd.jpg" {
		t.Errorf("Key = %q", got)
	}
	if got := aws.ToString(putter.input.ContentType); got != "image/jpeg" {
		t.Errorf("ContentType = %q", got)
	}
	if aws.ToInt64(putter.input.ContentLength) != 4 || string(putter.body) != "jpeg" {
		t.Errorf("unexpected body %q", putter.body)
	}
}

func TestArchive_NoPrefix(t *testing.T) {
	a := NewWithClient(&fakePutter{}, "b", "", testLogger())
	a.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	if got := a.key("x.mp4"); got != "2026/01/01/x.mp4" {
		t.Errorf("key = %q", got)
	}
}

func TestArchive_Errors(t *testing.T) {
	a := NewWithClient(&fakePutter{}, "b", "p", testLogger())
	if err := a.Archive(context.Background(), filepath.Join(t.TempDir(), "missing.jpg")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "a.bin")
	os.WriteFile(path, []byte("x"), 0o644)
	failing := NewWithClient(&fakePutter{err: errors.New("AccessDenied")}, "b", "p", testLogger())
	if err := failing.Archive(context.Background(), path); err == nil {
		t.Error("expected upload error")
	}
}
