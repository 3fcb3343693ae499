package utils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	indentPrefix    = "    "
	entryPrefix     = "├── "
	lastEntryPrefix = "└── "
	verticalLine    = "│   "
)

// WriteTreeStructure writes a text directory tree of targetDir to w.
// Entries for which skip returns true (given the slash-separated path relative to targetDir) are omitted.
func WriteTreeStructure(w io.Writer, targetDir string, skip func(rel string) bool, log *logrus.Entry) error {
	info, err := os.Stat(targetDir)
	if err != nil {
		return fmt.Errorf("%w: checking target directory '%s': %w", ErrFilesystem, targetDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: '%s' is not a directory", ErrFilesystem, targetDir)
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "Directory Structure for: %s\n", targetDir)
	fmt.Fprintf(bw, "%s\n\n", strings.Repeat("=", 25+len(targetDir)))
	fmt.Fprintf(bw, "%s/\n", filepath.Base(targetDir))

	if err := walkTree(bw, targetDir, "", "", skip, log); err != nil {
		return fmt.Errorf("error generating tree structure for '%s': %w", targetDir, err)
	}
	return bw.Flush()
}

// walkTree writes the entries of dirPath, directories first, then recurses
func walkTree(w io.Writer, dirPath, rel, indent string, skip func(string) bool, log *logrus.Entry) error {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		log.Warnf("Failed to read directory '%s': %v", dirPath, err)
		return fmt.Errorf("%w: reading directory '%s': %w", ErrFilesystem, dirPath, err)
	}

	if skip != nil {
		entries = slices.DeleteFunc(entries, func(e os.DirEntry) bool {
			return skip(filepath.ToSlash(filepath.Join(rel, e.Name())))
		})
	}
	slices.SortFunc(entries, func(a, b os.DirEntry) int {
		if a.IsDir() != b.IsDir() {
			if a.IsDir() {
				return -1
			}
			return 1
		}
		return strings.Compare(strings.ToLower(a.Name()), strings.ToLower(b.Name()))
	})

	for i, entry := range entries {
		isLast := i == len(entries)-1
		connector, nextIndent := entryPrefix, indent+verticalLine
		if isLast {
			connector, nextIndent = lastEntryPrefix, indent+indentPrefix
		}
		if _, err := fmt.Fprintf(w, "%s%s%s\n", indent, connector, entry.Name()); err != nil {
			return err
		}
		if entry.IsDir() {
			if err := walkTree(w, filepath.Join(dirPath, entry.Name()), filepath.Join(rel, entry.Name()), nextIndent, skip, log); err != nil {
				return err
			}
		}
	}
	return nil
}
