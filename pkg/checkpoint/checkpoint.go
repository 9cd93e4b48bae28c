package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pquerna/ffjson/ffjson"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Record is the persisted checkpoint file payload. The token is stored as
// canonical extended JSON and never interpreted beyond that round trip.
type Record struct {
	StreamID string          `json:"stream_id"`
	Token    json.RawMessage `json:"token"`
	SavedAt  time.Time       `json:"saved_at"`
}

// FileStore persists a single resume token to a local file. The file is
// read wholesale at startup and overwritten wholesale after every flush.
type FileStore struct {
	path     string
	streamID string
}

// NewFileStore creates a file-based checkpoint store, creating the parent
// directory if needed.
func NewFileStore(path, streamID string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("checkpoint path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create checkpoint directory %s: %w", dir, err)
		}
	}
	return &FileStore{path: path, streamID: streamID}, nil
}

// Load reads the persisted token. A missing file is the normal start-fresh
// condition and returns ok=false with no error; any other read or parse
// failure is returned and should abort startup.
func (fs *FileStore) Load(ctx context.Context) (bson.Raw, bool, error) {
	data, err := os.ReadFile(fs.path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", fs.path).Msg("No checkpoint file, starting fresh")
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read checkpoint file %s: %w", fs.path, err)
	}

	var record Record
	if err := ffjson.Unmarshal(data, &record); err != nil {
		return nil, false, fmt.Errorf("%w: %s: %v", ErrCorrupt, fs.path, err)
	}
	if len(record.Token) == 0 {
		return nil, false, fmt.Errorf("%w: %s: missing token", ErrCorrupt, fs.path)
	}

	var doc bson.M
	if err := bson.UnmarshalExtJSON(record.Token, true, &doc); err != nil {
		return nil, false, fmt.Errorf("%w: %s: %v", ErrCorrupt, fs.path, err)
	}
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s: %v", ErrCorrupt, fs.path, err)
	}

	log.Info().Str("path", fs.path).Time("saved_at", record.SavedAt).Msg("Loaded checkpoint")
	return bson.Raw(raw), true, nil
}

// Save overwrites the persisted token. Failures are returned for the caller
// to log and swallow; a transient disk error must not stop the pipeline.
func (fs *FileStore) Save(ctx context.Context, token bson.Raw) error {
	if len(token) == 0 {
		return ErrEmptyToken
	}

	tokenJSON, err := bson.MarshalExtJSON(token, true, false)
	if err != nil {
		return fmt.Errorf("failed to encode resume token: %w", err)
	}

	record := Record{
		StreamID: fs.streamID,
		Token:    tokenJSON,
		SavedAt:  time.Now().UTC(),
	}
	data, err := ffjson.Marshal(&record)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint record: %w", err)
	}

	// Write to a temporary file first, then rename for atomicity.
	tempPath := fs.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary checkpoint file: %w", err)
	}
	if err := os.Rename(tempPath, fs.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temporary checkpoint file: %w", err)
	}

	log.Debug().Str("path", fs.path).Msg("Saved checkpoint")
	return nil
}

// Path returns the checkpoint file location.
func (fs *FileStore) Path() string {
	return fs.path
}
