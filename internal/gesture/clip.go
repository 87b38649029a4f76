// Package gesture owns the library of named motion clips and resolves
// which clip is active at any time, cross-fading between them.
package gesture

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/qmuntal/gltf"
	"github.com/rs/zerolog"
)

// Clip is a named, pre-authored motion sequence. Read-only once loaded.
type Clip struct {
	Name     string
	Loopable bool
	Priority int
	Duration float64 // seconds
}

// Clip categories by name prefix. Idle fillers loop at low priority;
// speech-state clips loop above them; anything else is a one-shot
// emphasis gesture that preempts both.
const (
	PriorityIdle     = 1
	PrioritySpeech   = 2
	PriorityEmphasis = 3
)

func classify(name string) (loopable bool, priority int) {
	switch {
	case strings.HasPrefix(name, "idle"):
		return true, PriorityIdle
	case strings.HasPrefix(name, "talk"), strings.HasPrefix(name, "think"):
		return true, PrioritySpeech
	default:
		return false, PriorityEmphasis
	}
}

// Library loads gesture clips from a directory of glTF files and keeps
// them available by name. Loading is best-effort per clip.
type Library struct {
	mu     sync.RWMutex
	logger zerolog.Logger

	dir     string
	clips   map[string]*Clip
	watcher *fsnotify.Watcher
}

// NewLibrary creates a library rooted at dir.
func NewLibrary(dir string, logger zerolog.Logger) *Library {
	return &Library{
		logger: logger.With().Str("component", "gesture-library").Logger(),
		dir:    dir,
		clips:  make(map[string]*Clip),
	}
}

// LoadAll scans the clip directory. A clip that fails to parse is
// logged and skipped; it never blocks the rest of the library.
func (l *Library) LoadAll() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("read clip dir: %w", err)
	}

	loaded := make(map[string]*Clip)
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".gltf" && ext != ".glb") {
			continue
		}
		path := filepath.Join(l.dir, entry.Name())
		clips, err := loadClipsFromFile(path)
		if err != nil {
			l.logger.Warn().Err(err).Str("file", entry.Name()).Msg("Skipping unreadable clip file")
			continue
		}
		for _, c := range clips {
			loaded[c.Name] = c
		}
	}

	l.mu.Lock()
	l.clips = loaded
	l.mu.Unlock()

	l.logger.Info().Int("clips", len(loaded)).Msg("Gesture library loaded")
	return nil
}

// loadClipsFromFile extracts one Clip per glTF animation. Duration is
// the largest keyframe timestamp across the animation's samplers.
func loadClipsFromFile(path string) ([]*Clip, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gltf: %w", err)
	}
	if len(doc.Animations) == 0 {
		return nil, fmt.Errorf("no animations in %s", filepath.Base(path))
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	clips := make([]*Clip, 0, len(doc.Animations))

	for i, anim := range doc.Animations {
		name := anim.Name
		if name == "" {
			name = base
			if i > 0 {
				name = fmt.Sprintf("%s_%d", base, i)
			}
		}

		var duration float64
		for _, sampler := range anim.Samplers {
			if sampler == nil || int(sampler.Input) >= len(doc.Accessors) {
				continue
			}
			acc := doc.Accessors[sampler.Input]
			if acc == nil {
				continue
			}
			if len(acc.Max) > 0 && acc.Max[0] > duration {
				duration = acc.Max[0]
			}
		}

		loopable, priority := classify(name)
		clips = append(clips, &Clip{
			Name:     name,
			Loopable: loopable,
			Priority: priority,
			Duration: duration,
		})
	}

	return clips, nil
}

// Register adds a clip directly, bypassing file loading. Used for
// built-in clips that have no asset file.
func (l *Library) Register(clip *Clip) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clips[clip.Name] = clip
}

// Get returns the clip by name, or nil when the character has no such
// clip (a missing asset is skipped, not an error).
func (l *Library) Get(name string) *Clip {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.clips[name]
}

// Names returns all loaded clip names.
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.clips))
	for n := range l.clips {
		names = append(names, n)
	}
	return names
}

// Watch reloads the library when the clip directory changes.
func (l *Library) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("clip watcher: %w", err)
	}
	if err := watcher.Add(l.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", l.dir, err)
	}
	l.watcher = watcher

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
					if err := l.LoadAll(); err != nil {
						l.logger.Warn().Err(err).Msg("Clip reload failed")
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Warn().Err(err).Msg("Clip watcher error")
			}
		}
	}()
	return nil
}

// Close stops the directory watcher.
func (l *Library) Close() error {
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}
