package metadata

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("cilscope.metadata")

// DirLoader loads referenced assemblies by short name from a list of
// directories, caching every module it opens.
type DirLoader struct {
	Paths []string
	cache map[string]*Module
}

// NewDirLoader returns a loader searching paths in order.
func NewDirLoader(paths ...string) *DirLoader {
	return &DirLoader{Paths: paths, cache: make(map[string]*Module)}
}

// Add registers an already opened module under its assembly name.
func (l *DirLoader) Add(m *Module) {
	l.cache[strings.ToLower(m.Name())] = m
}

// Load returns the module for assembly name, opening <dir>/<name>.dll or
// <dir>/<name>.exe from the first directory that has one.
func (l *DirLoader) Load(name string) (*Module, error) {
	key := strings.ToLower(name)
	if m, ok := l.cache[key]; ok {
		return m, nil
	}
	for _, dir := range l.Paths {
		for _, ext := range []string{".dll", ".exe"} {
			path := filepath.Join(dir, name+ext)
			if _, err := os.Stat(path); err != nil {
				if !errors.Is(err, fs.ErrNotExist) {
					log.Warningf("stat %s: %s", path, err)
				}
				continue
			}
			m, err := Open(path)
			if err != nil {
				return nil, err
			}
			log.Debugf("loaded %s from %s", name, path)
			l.cache[key] = m
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrAssemblyNotFound, name)
}
