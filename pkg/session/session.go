// Package session implements whole-conversation persistence: JSON documents
// under $XDG_STATE_HOME/assistant/sessions, saved atomically the same way
// pkg/tool/patch swaps a file (sibling temp file + fsync + rename), plus a
// last-active pointer file so a bare --resume can find the most recent
// session without the caller naming an ID. Generalizes the teacher's
// pkg/rewind per-turn checkpoint pattern (atomic capture after each turn)
// from file-tree snapshots to conversation-document snapshots, since the
// domain here is message history, not workspace state.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kernelloop/assistant/pkg/convo"
)

// currentVersion is written into every new document. Load rejects a
// document from a newer version outright, since there is no forward
// migration path, and treats a missing version as 1 for documents saved
// before this field existed.
const currentVersion = 1

// Document is the full on-disk representation of one conversation.
type Document struct {
	Version   int       `json:"version"`
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Model    string `json:"model"`
	Provider string `json:"provider"`

	Messages []convo.Message `json:"messages"`

	// Usage accumulates the most recently reported prompt/completion token
	// counts, used to resume compaction bookkeeping across a restart.
	Usage convo.Usage `json:"usage"`
}

// Summary is the lightweight listing entry shown by `--resume` without a
// named session ID.
type Summary struct {
	ID        string    `json:"id"`
	UpdatedAt time.Time `json:"updated_at"`
	Model     string    `json:"model"`
	Preview   string    `json:"preview"`
}

// Store manages session documents under a root directory.
type Store struct {
	dir string
}

// New returns a Store rooted at the given directory, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// DefaultDir resolves $XDG_STATE_HOME/assistant/sessions, falling back to
// ~/.local/state/assistant/sessions when XDG_STATE_HOME is unset.
func DefaultDir() (string, error) {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		base = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(base, "assistant", "sessions"), nil
}

// NewDocument creates a fresh, empty document with a random ID.
func NewDocument(model, providerName string) *Document {
	now := time.Now()
	return &Document{
		Version:   currentVersion,
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		Model:     model,
		Provider:  providerName,
	}
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *Store) lastActivePath() string {
	return filepath.Join(s.dir, "last-active")
}

// Save writes doc atomically and updates the last-active pointer.
func (s *Store) Save(doc *Document) error {
	if doc.ID == "" {
		return fmt.Errorf("session: document has no id")
	}
	doc.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := writeAtomic(s.path(doc.ID), data); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	if err := writeAtomic(s.lastActivePath(), []byte(doc.ID)); err != nil {
		return fmt.Errorf("failed to update last-active pointer: %w", err)
	}

	return nil
}

// Load reads a session document by ID.
func (s *Store) Load(id string) (*Document, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}

	if doc.Version == 0 {
		doc.Version = 1
	}
	if doc.Version > currentVersion {
		return nil, fmt.Errorf("session %s was saved by a newer version (format %d, understand up to %d)", id, doc.Version, currentVersion)
	}

	return &doc, nil
}

// LastActive returns the ID of the most recently saved session, for a
// resume that doesn't name one explicitly.
func (s *Store) LastActive() (string, error) {
	data, err := os.ReadFile(s.lastActivePath())
	if err != nil {
		return "", fmt.Errorf("no active session: %w", err)
	}
	return string(data), nil
}

// List returns every session's summary, most recently updated first.
func (s *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	var out []Summary
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		id := entry.Name()[:len(entry.Name())-len(".json")]
		doc, err := s.Load(id)
		if err != nil {
			continue
		}
		out = append(out, Summary{
			ID:        doc.ID,
			UpdatedAt: doc.UpdatedAt,
			Model:     doc.Model,
			Preview:   preview(doc.Messages),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })

	return out, nil
}

// preview returns the first user text part, truncated, for a session list.
func preview(messages []convo.Message) string {
	const maxLen = 80
	for _, m := range messages {
		if m.Role != convo.RoleUser {
			continue
		}
		for _, p := range m.Parts {
			if p.Text == nil {
				continue
			}
			text := *p.Text
			if len(text) > maxLen {
				return text[:maxLen] + "..."
			}
			return text
		}
	}
	return ""
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}

	return nil
}
