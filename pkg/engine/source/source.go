package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"tally-hq/tally/pkg/rules"
)

// Snapshot is one load of a rule source.
type Snapshot struct {
	Set      *rules.RuleSet
	Hash     string // Hex SHA-256 of the rule text
	LoadedAt time.Time
}

// Source provides rule sets to the engine.
type Source interface {
	// Load reads and parses the rules. It fails closed: a rule text with
	// any error yields no snapshot.
	Load(ctx context.Context) (*Snapshot, error)
}

// HashContent returns the hex SHA-256 of rule text.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// FileSource loads rules from a file on disk.
type FileSource struct {
	path   string
	parser *rules.Parser
	logger *slog.Logger
}

// NewFileSource creates a file-based rule source.
func NewFileSource(path string, logger *slog.Logger) *FileSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSource{
		path:   path,
		parser: rules.NewParser(),
		logger: logger,
	}
}

// WithParser sets the parser used to read the file.
func (s *FileSource) WithParser(p *rules.Parser) *FileSource {
	s.parser = p
	return s
}

// Path returns the rule file path.
func (s *FileSource) Path() string {
	return s.path
}

// Load reads and parses the rule file.
func (s *FileSource) Load(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file %q: %w", s.path, err)
	}

	set, err := s.parser.ParseBytes(s.path, content)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Set:      set,
		Hash:     HashContent(content),
		LoadedAt: time.Now(),
	}

	s.logger.Info("loaded rules from source",
		"path", s.path,
		"rule_count", len(set.Rules),
		"variable_count", len(set.Variables),
	)

	return snap, nil
}

// MemorySource is an in-memory rule source.
type MemorySource struct {
	mu   sync.RWMutex
	text string
}

// NewMemorySource creates an in-memory rule source.
func NewMemorySource(text string) *MemorySource {
	return &MemorySource{text: text}
}

// Load parses the rule text held in memory.
func (s *MemorySource) Load(ctx context.Context) (*Snapshot, error) {
	s.mu.RLock()
	text := s.text
	s.mu.RUnlock()

	set, err := rules.Parse(text)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Set: set, Hash: HashContent([]byte(text)), LoadedAt: time.Now()}, nil
}

// SetText replaces the rule text.
func (s *MemorySource) SetText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = text
}
