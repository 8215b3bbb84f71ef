// Package scanner walks a local tree and lists the files to synchronize.
package scanner

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/internal/localfs"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/internal/manifest"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/objtypes"
)

// IgnoreFile is the optional exclusion file at the sync root.
const IgnoreFile = ".objsyncignore"

var defaultIgnoreLines = []string{
	// objsync state
	objtypes.StateDir + "/",
	IgnoreFile,
	"/" + objtypes.ListingFile,
	"/" + objtypes.VersionFile,
	// vcs
	".git",
	// OS-specific
	".DS_Store",
	"Thumbs.db",
}

// Scanner lists regular files under a root directory.
type Scanner struct {
	fs     *localfs.FS
	root   string
	ignore *gitignore.GitIgnore
	logger *slog.Logger
}

// New creates a scanner for root. Exclusions are the defaults, the root's
// .objsyncignore file if present, and patterns.
func New(fs *localfs.FS, root string, patterns []string, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Scanner{
		fs:     fs,
		root:   root,
		logger: logger,
	}
	s.ignore = gitignore.CompileIgnoreLines(s.ignoreLines(patterns)...)
	return s
}

func (s *Scanner) ignoreLines(patterns []string) []string {
	lines := append([]string{}, defaultIgnoreLines...)
	lines = append(lines, patterns...)

	ignorePath := s.fs.Join(s.root, IgnoreFile)
	data, err := s.fs.ReadFile(ignorePath)
	if err != nil {
		return lines
	}

	rules := 0
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
		rules++
	}
	s.logger.Debug("loaded ignore file", "path", ignorePath, "rules", rules)
	return lines
}

// ShouldIgnore reports whether the root-relative, forward-slash path rel is
// excluded.
func (s *Scanner) ShouldIgnore(rel string) bool {
	return s.ignore.MatchesPath(rel)
}

// Scan walks the root and returns every regular, non-excluded file sorted
// by relative path. Fingerprints are left empty.
func (s *Scanner) Scan(ctx context.Context) ([]manifest.LocalRecord, error) {
	var out []manifest.LocalRecord

	err := s.fs.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path == s.root {
			return nil
		}

		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			if s.ShouldIgnore(rel + "/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() || s.ShouldIgnore(rel) {
			return nil
		}

		out = append(out, manifest.LocalRecord{
			Record:    manifest.Record{Path: rel, Size: info.Size()},
			LocalPath: path,
		})
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, objerrors.NewIOError("scan", s.root, err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	s.logger.Debug("local scan complete", "root", s.root, "files", len(out))
	return out, nil
}
