// Package knowledge assembles the static reference text injected into every
// system prompt.
package knowledge

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultPatterns selects the documents read from the knowledge directory.
var DefaultPatterns = []string{"*.txt", "*.json"}

// Load reads every file of dir matching one of patterns, in lexical order, and
// concatenates them under a per-file header. A missing directory is created
// and yields an empty knowledge base.
func Load(dir string, patterns []string, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}

	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("creating knowledge dir %s: %w", dir, err)
		}
		logger.Info("knowledge directory created", "dir", dir)
		return "", nil
	case err != nil:
		return "", fmt.Errorf("accessing knowledge dir %s: %w", dir, err)
	case !info.IsDir():
		return "", fmt.Errorf("knowledge path %s is not a directory", dir)
	}

	return Assemble(os.DirFS(dir), patterns, logger)
}

// Assemble builds the knowledge text from the files of fsys matching patterns.
func Assemble(fsys fs.FS, patterns []string, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	seen := make(map[string]struct{})
	var names []string
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return "", fmt.Errorf("matching knowledge pattern %q: %w", pattern, err)
		}
		for _, name := range matches {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var builder strings.Builder
	for _, name := range names {
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return "", fmt.Errorf("reading knowledge file %s: %w", name, err)
		}
		builder.WriteString("\n\nConteúdo do arquivo ")
		builder.WriteString(name)
		builder.WriteString(":\n")
		builder.Write(content)
		logger.Info("knowledge file loaded", "file", name, "bytes", len(content))
	}
	return builder.String(), nil
}
