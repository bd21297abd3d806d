// Package archive exports finished practice sessions so they can be
// reviewed later: the transcript with translations, the settings the
// session ran under, and the recorded audio clips. Archives live on a
// pluggable blob backend (local directory or an S3-compatible bucket).
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/lingopod/lingopod/pkg/clipcache"
	"github.com/lingopod/lingopod/pkg/jsontime"
	"github.com/lingopod/lingopod/pkg/profile"
	"github.com/lingopod/lingopod/pkg/transcript"
)

// Blobs is the storage backend an archive is written to.
//
// Paths are forward-slash separated and relative to the backend root.
// Implementations must be safe for concurrent use. Read returns an error
// wrapping os.ErrNotExist when the path is absent; Delete of an absent
// path is a no-op.
type Blobs interface {
	Read(ctx context.Context, path string) (io.ReadCloser, error)
	Write(ctx context.Context, path string) (io.WriteCloser, error)
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
}

// ClipEntry records one exported audio clip inside a manifest.
type ClipEntry struct {
	// MessageID is the transcript message the clip belongs to.
	MessageID string `json:"message_id"`

	// Path is the blob path of the raw PCM data, relative to the
	// backend root.
	Path string `json:"path"`

	Meta clipcache.Meta `json:"meta"`
}

// Manifest is the JSON document describing one archived session.
type Manifest struct {
	// ID names the session. It doubles as the archive directory name, so
	// it must be unique per backend.
	ID string `json:"id"`

	CreatedAt jsontime.Milli `json:"created_at"`

	// Settings the session ran under when it ended.
	Settings profile.Settings `json:"settings"`

	// Messages is the transcript in display order.
	Messages []*transcript.Message `json:"messages"`

	// Clips lists the audio files exported alongside the manifest.
	// Populated by Export; caller-provided values are discarded.
	Clips []ClipEntry `json:"clips,omitempty"`
}

// Exporter writes and reads session archives.
type Exporter struct {
	// Blobs is the destination backend. Required.
	Blobs Blobs

	// Clips is the cache recorded audio is pulled from. Optional; without
	// one, archives carry the transcript only.
	Clips clipcache.Store
}

func manifestPath(sessionID string) string {
	return "sessions/" + sessionID + "/manifest.json"
}

func clipPath(sessionID, messageID string) string {
	return "sessions/" + sessionID + "/clips/" + messageID + ".pcm"
}

// Export writes the manifest and every still-cached clip for messages
// marked as having audio. A clip that has already been evicted from the
// cache is skipped, not an error.
func (e *Exporter) Export(ctx context.Context, m *Manifest) error {
	if m.ID == "" {
		return errors.New("archive: manifest needs a session id")
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = jsontime.Now()
	}

	m.Clips = nil
	if e.Clips != nil {
		for _, msg := range m.Messages {
			if !msg.HasAudio {
				continue
			}
			clip, err := e.Clips.Get(ctx, msg.ID)
			if errors.Is(err, clipcache.ErrNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("archive: load clip %s: %w", msg.ID, err)
			}
			path := clipPath(m.ID, msg.ID)
			if err := e.writeBlob(ctx, path, clip.Data); err != nil {
				return fmt.Errorf("archive: write clip %s: %w", msg.ID, err)
			}
			m.Clips = append(m.Clips, ClipEntry{
				MessageID: msg.ID,
				Path:      path,
				Meta:      clip.Meta,
			})
		}
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("archive: encode manifest: %w", err)
	}
	if err := e.writeBlob(ctx, manifestPath(m.ID), data); err != nil {
		return fmt.Errorf("archive: write manifest: %w", err)
	}
	return nil
}

// Open loads an archived session's manifest.
func (e *Exporter) Open(ctx context.Context, sessionID string) (*Manifest, error) {
	rc, err := e.Blobs.Read(ctx, manifestPath(sessionID))
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var m Manifest
	if err := json.NewDecoder(rc).Decode(&m); err != nil {
		return nil, fmt.Errorf("archive: decode manifest %s: %w", sessionID, err)
	}
	return &m, nil
}

// OpenClip streams one archived clip's PCM data.
func (e *Exporter) OpenClip(ctx context.Context, entry ClipEntry) (io.ReadCloser, error) {
	return e.Blobs.Read(ctx, entry.Path)
}

// Exists reports whether a session has been archived.
func (e *Exporter) Exists(ctx context.Context, sessionID string) (bool, error) {
	return e.Blobs.Exists(ctx, manifestPath(sessionID))
}

// Remove deletes an archived session: every clip the manifest lists,
// then the manifest itself. Removing a session that was never archived
// is a no-op.
func (e *Exporter) Remove(ctx context.Context, sessionID string) error {
	m, err := e.Open(ctx, sessionID)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, entry := range m.Clips {
		if err := e.Blobs.Delete(ctx, entry.Path); err != nil {
			return fmt.Errorf("archive: delete clip %s: %w", entry.MessageID, err)
		}
	}
	return e.Blobs.Delete(ctx, manifestPath(sessionID))
}

func (e *Exporter) writeBlob(ctx context.Context, path string, data []byte) error {
	w, err := e.Blobs.Write(ctx, path)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
