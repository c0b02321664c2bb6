package normalize

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// patternsFile is the on-disk shape of the extra identifier patterns:
//
//	patterns:
//	  - "^[A-Z]{3}-[0-9]+$"
//	  - "^inv_[0-9a-f]+$"
//
// Each pattern is matched against a whole path segment. The built-in rules
// are known to be incomplete, so operators extend them here instead of
// patching code.
type patternsFile struct {
	Patterns []string `yaml:"patterns"`
}

// Reload re-reads the patterns file and swaps in the compiled set. On any
// error the previously loaded set stays active.
func (n *Normalizer) Reload() error {
	if n.file == "" {
		return nil
	}

	data, err := os.ReadFile(n.file)
	if err != nil {
		return fmt.Errorf("failed to read patterns file: %w", err)
	}

	var pf patternsFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("failed to decode patterns file (%s): %w", n.file, err)
	}

	compiled := make([]*regexp.Regexp, 0, len(pf.Patterns))
	for _, pattern := range pf.Patterns {
		// Anchor so a pattern always matches a whole segment.
		re, err := regexp.Compile(`\A(?:` + pattern + `)\z`)
		if err != nil {
			return fmt.Errorf("invalid identifier pattern %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}

	n.mu.Lock()
	n.extra = compiled
	n.mu.Unlock()

	n.logger.Debug("Loaded identifier patterns",
		n.logger.Args("file", n.file, "count", len(compiled)))
	return nil
}

// Watch reloads the patterns file whenever it changes on disk. It returns
// after starting the watcher goroutine; the goroutine stops when done is
// closed. Reload failures keep the old pattern set and are logged only.
//
// Note this is the one piece of post-startup mutability in the pipeline;
// the token mapping itself is immutable for the process lifetime.
func (n *Normalizer) Watch(done <-chan struct{}) error {
	if n.file == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create patterns watcher: %w", err)
	}

	// Watch the directory, not the file: editors and config mounts replace
	// files atomically, which drops a file-level watch.
	if err := watcher.Add(filepath.Dir(n.file)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch patterns directory: %w", err)
	}

	target := filepath.Clean(n.file)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := n.Reload(); err != nil {
					n.logger.Warn("Failed to reload identifier patterns, keeping previous set",
						n.logger.Args("file", n.file, "error", err))
					continue
				}
				n.logger.Info("Reloaded identifier patterns", n.logger.Args("file", n.file))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				n.logger.Warn("Patterns watcher error", n.logger.Args("error", err))
			}
		}
	}()

	n.logger.Info("Watching identifier patterns file", n.logger.Args("file", n.file))
	return nil
}
