package media

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hesamsheikh/AnimAI-Trainer/internal/llm"
)

// DefaultPattern matches the renderer's png frame layout below a media dir.
const DefaultPattern = "images/*/*.png"

// FrameStore discovers rendered frames and reads them for vision prompts.
type FrameStore struct {
	Pattern string
}

// NewFrameStore returns a store globbing pattern below each output dir.
func NewFrameStore(pattern string) *FrameStore {
	if strings.TrimSpace(pattern) == "" {
		pattern = DefaultPattern
	}
	return &FrameStore{Pattern: pattern}
}

// List returns frame paths under dir in lexical order. A missing dir yields none.
func (s *FrameStore) List(dir string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, s.Pattern))
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	sort.Strings(matches)
	return matches, nil
}

// Load reads a frame into an inline image.
func (s *FrameStore) Load(path string) (llm.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return llm.Image{}, fmt.Errorf("read frame: %w", err)
	}
	return llm.Image{MIMEType: mimeType(path, data), Data: data}, nil
}

func mimeType(path string, data []byte) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	}
	return http.DetectContentType(data)
}
