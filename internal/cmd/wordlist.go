package cmd

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	pojie "github.com/Pojie/pojie-go"
)

// loadWordlist reads candidates from a text file, one per line with '#'
// comments, or from a JSON array when the file ends in .json. Order is kept
// and duplicates are dropped.
func loadWordlist(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read wordlist: %w", err)
	}

	var raw []string
	if strings.EqualFold(filepath.Ext(path), ".json") {
		enc := &pojie.JSONEncoder{}
		if err := enc.Decode(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to decode wordlist %s: %w", path, err)
		}
	} else {
		sc := bufio.NewScanner(bytes.NewReader(data))
		for sc.Scan() {
			line := strings.TrimRight(sc.Text(), "\r")
			if strings.HasPrefix(line, "#") {
				continue
			}
			raw = append(raw, line)
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("failed to scan wordlist %s: %w", path, err)
		}
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, w := range raw {
		if w == "" {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("wordlist %s has no candidates", path)
	}
	return out, nil
}
