package webapi

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vericloud/vericloud/internal/session"
)

// ErrSessionNotFound is returned when an ID does not match any stored session.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore provides access to recorded session logs.
type SessionStore interface {
	// ListSessions returns all sessions, sorted by the given field and order.
	ListSessions(sortField, order string) ([]SessionSummary, error)
	// GetSession returns a single session with its events.
	GetSession(id string) (*SessionDetail, error)
}

// FileStore reads session logs from a directory. Logs are re-read on every
// call because sessions may still be appending.
type FileStore struct {
	dir string
}

// NewFileStore creates a FileStore that reads session logs from dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (fs *FileStore) list() ([]session.SessionFile, error) {
	if fs.dir == "" {
		return nil, nil
	}
	files, err := session.ListSessions(fs.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return files, nil
}

// ListSessions returns all sessions sorted by the given field and order.
func (fs *FileStore) ListSessions(sortField, order string) ([]SessionSummary, error) {
	files, err := fs.list()
	if err != nil {
		return nil, err
	}
	out := make([]SessionSummary, 0, len(files))
	for _, f := range files {
		out = append(out, fileToSummary(f))
	}
	sortSessions(out, sortField, order)
	return out, nil
}

// GetSession returns a single session with its events. The id is either the
// full log ID or the session UUID embedded in it.
func (fs *FileStore) GetSession(id string) (*SessionDetail, error) {
	files, err := fs.list()
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if name := sessionID(f.Name); name != id && !strings.HasSuffix(name, "-"+id) {
			continue
		}
		events, err := session.ReadEvents(f.Path)
		if err != nil {
			return nil, err
		}
		return &SessionDetail{SessionSummary: fileToSummary(f), Events: events}, nil
	}
	return nil, ErrSessionNotFound
}

func fileToSummary(f session.SessionFile) SessionSummary {
	return SessionSummary{
		ID:        sessionID(f.Name),
		Name:      f.Name,
		Size:      f.Size,
		NumEvents: f.NumEvents,
		Timestamp: f.ModTime,
	}
}

// sessionID strips the log suffix from a file name.
func sessionID(name string) string {
	name = filepath.Base(name)
	name = strings.TrimSuffix(name, ".zst")
	return strings.TrimSuffix(name, "-session.jsonl")
}

func sortSessions(sessions []SessionSummary, field, order string) {
	less := func(i, j int) bool {
		switch field {
		case "size":
			return sessions[i].Size < sessions[j].Size
		case "events":
			return sessions[i].NumEvents < sessions[j].NumEvents
		default: // "timestamp" or empty
			return sessions[i].Timestamp.Before(sessions[j].Timestamp)
		}
	}

	if order == "asc" {
		sort.SliceStable(sessions, less)
	} else {
		sort.SliceStable(sessions, func(i, j int) bool { return less(j, i) })
	}
}

// Ensure FileStore satisfies SessionStore.
var _ SessionStore = (*FileStore)(nil)
