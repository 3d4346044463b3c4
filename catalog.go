package main

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/text/unicode/norm"
)

// loadPhrases reads the line-delimited catalog: one phrase per line,
// trimmed, blank lines dropped, NFC-normalized, deduplicated keeping
// first-seen order. A missing file is created empty so the server can
// start against a fresh directory.
func loadPhrases(path string) ([]string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, nil, 0644); err != nil {
			return nil, err
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	phrases := []string{}

	for _, line := range strings.Split(string(raw), "\n") {
		s := strings.TrimSpace(line)
		if s == "" {
			continue
		}
		p := norm.NFC.String(s)
		if !seen[p] {
			seen[p] = true
			phrases = append(phrases, p)
		}
	}

	return phrases, nil
}

// watchPhrases watches the catalog file and feeds freshly loaded catalogs
// into the hub's reload channel. The parent directory is watched rather
// than the file itself, since editors typically replace the file on save.
// A failed reload keeps the previous catalog in effect.
func watchPhrases(cfg *Config, hub *Hub) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(filepath.Dir(cfg.phrasesFile)); err != nil {
		watcher.Close()
		return nil, err
	}

	target := filepath.Base(cfg.phrasesFile)

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write | fsnotify.Create | fsnotify.Rename) {
					continue
				}

				phrases, err := loadPhrases(cfg.phrasesFile)
				if err != nil {
					log.Printf("ERROR: catalog reload failed, keeping previous catalog: %v", err)
					continue
				}

				logf(cfg, "GAMES: Reloaded %d phrase(s) from %s", len(phrases), cfg.phrasesFile)

				hub.reloads <- phrases

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("ERROR: catalog watch: %v", err)
			}
		}
	}()

	return watcher, nil
}
