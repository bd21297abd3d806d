package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/lingopod/lingopod/pkg/clipcache"
	"github.com/lingopod/lingopod/pkg/profile"
	"github.com/lingopod/lingopod/pkg/transcript"
)

func TestDirBackendRoundtrip(t *testing.T) {
	ctx := context.Background()
	d, err := NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}

	w, err := d.Write(ctx, "sessions/s1/manifest.json")
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := w.Write([]byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	ok, err := d.Exists(ctx, "sessions/s1/manifest.json")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}

	rc, err := d.Read(ctx, "sessions/s1/manifest.json")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "hello" {
		t.Fatalf("read back %q", data)
	}

	if _, err := d.Read(ctx, "sessions/s1/missing"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing read err = %v, want os.ErrNotExist", err)
	}

	if err := d.Delete(ctx, "sessions/s1/manifest.json"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := d.Delete(ctx, "sessions/s1/manifest.json"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if ok, _ := d.Exists(ctx, "sessions/s1/manifest.json"); ok {
		t.Fatal("still exists after delete")
	}
}

func testManifest() *Manifest {
	return &Manifest{
		ID: "s1",
		Settings: profile.Settings{
			TargetLanguage: "es",
			NativeLanguage: "en",
			Level:          profile.LevelBeginner,
		},
		Messages: []*transcript.Message{
			{ID: "msg_a", Role: transcript.RoleUser, TextFinal: "hola", Done: true},
			{ID: "msg_b", Role: transcript.RoleAssistant, TextFinal: "buenos días", Translation: "good morning", Done: true, HasAudio: true},
			{ID: "msg_c", Role: transcript.RoleAssistant, TextFinal: "adiós", Done: true, HasAudio: true},
		},
	}
}

func TestExportAndOpen(t *testing.T) {
	ctx := context.Background()
	d, err := NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	clips := clipcache.NewMemory()
	pcm := []byte{1, 2, 3, 4}
	if err := clips.Put(ctx, "msg_b", pcm, clipcache.Meta{MIMEType: "audio/pcm", SampleRate: 24000, Channels: 1}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	// msg_c is marked as having audio but its clip has been evicted.

	ex := &Exporter{Blobs: d, Clips: clips}
	m := testManifest()
	if err := ex.Export(ctx, m); err != nil {
		t.Fatalf("Export: %v", err)
	}

	ok, err := ex.Exists(ctx, "s1")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}

	got, err := ex.Open(ctx, "s1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got.ID != "s1" || got.Settings.TargetLanguage != "es" {
		t.Fatalf("manifest = %+v", got)
	}
	if len(got.Messages) != 3 || got.Messages[1].Translation != "good morning" {
		t.Fatalf("messages = %+v", got.Messages)
	}
	if len(got.Clips) != 1 || got.Clips[0].MessageID != "msg_b" {
		t.Fatalf("clips = %+v, want just the still-cached one", got.Clips)
	}
	if got.Clips[0].Meta.SampleRate != 24000 {
		t.Fatalf("clip meta = %+v", got.Clips[0].Meta)
	}

	rc, err := ex.OpenClip(ctx, got.Clips[0])
	if err != nil {
		t.Fatalf("OpenClip: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if !bytes.Equal(data, pcm) {
		t.Fatalf("clip data = %v", data)
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	d, err := NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	clips := clipcache.NewMemory()
	if err := clips.Put(ctx, "msg_b", []byte{9}, clipcache.Meta{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	ex := &Exporter{Blobs: d, Clips: clips}
	if err := ex.Export(ctx, testManifest()); err != nil {
		t.Fatalf("Export: %v", err)
	}

	if err := ex.Remove(ctx, "s1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if ok, _ := ex.Exists(ctx, "s1"); ok {
		t.Fatal("manifest survived Remove")
	}
	if ok, _ := d.Exists(ctx, clipPath("s1", "msg_b")); ok {
		t.Fatal("clip survived Remove")
	}
	// Removing a session that was never archived is a no-op.
	if err := ex.Remove(ctx, "s2"); err != nil {
		t.Fatalf("Remove of absent session: %v", err)
	}
}

// fakeS3 is a map-backed S3API.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*params.Key]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey"}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.objects[*params.Key] = data
	f.mu.Unlock()
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	delete(f.objects, *params.Key)
	f.mu.Unlock()
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[*params.Key]; !ok {
		return nil, &smithy.GenericAPIError{Code: "NotFound"}
	}
	return &s3.HeadObjectOutput{}, nil
}

func TestBucketBackend(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	b := NewBucket(fake, "archive-bucket", "lingopod")

	ex := &Exporter{Blobs: b}
	if ok, err := ex.Exists(ctx, "s1"); err != nil || ok {
		t.Fatalf("Exists before export = %v, %v", ok, err)
	}

	if err := ex.Export(ctx, testManifest()); err != nil {
		t.Fatalf("Export: %v", err)
	}
	fake.mu.Lock()
	_, prefixed := fake.objects["lingopod/sessions/s1/manifest.json"]
	fake.mu.Unlock()
	if !prefixed {
		t.Fatal("object key missing the configured prefix")
	}

	got, err := ex.Open(ctx, "s1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(got.Messages) != 3 {
		t.Fatalf("messages = %d", len(got.Messages))
	}
	// No clip cache wired: the manifest carries the transcript only.
	if len(got.Clips) != 0 {
		t.Fatalf("clips = %+v", got.Clips)
	}

	if _, err := ex.Open(ctx, "nope"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing open err = %v", err)
	}
}
