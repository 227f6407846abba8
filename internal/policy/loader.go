package policy

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Loader produces a validated policy Snapshot from a backing source.
type Loader interface {
	Load() (*Snapshot, error)
}

// NewSnapshot builds a Snapshot from explicit parent links and ceilings.
// Used directly in tests and for the built-in default policy; file-backed
// policies go through FileLoader.
func NewSnapshot(version string, parents map[string]string, ceilings map[string]Classification) (*Snapshot, error) {
	hierarchy, err := NewHierarchy(parents)
	if err != nil {
		return nil, err
	}

	cp := make(map[string]Classification, len(ceilings))
	for role, c := range ceilings {
		cp[role] = c
	}
	return &Snapshot{version: version, hierarchy: hierarchy, ceilings: cp}, nil
}

// DefaultSnapshot is the built-in coarse role chain, used when no policy
// bundle is configured (dev mode and tests).
func DefaultSnapshot() *Snapshot {
	snap, err := NewSnapshot("builtin",
		map[string]string{
			"admin":       "dept_admin",
			"dept_admin":  "dept_viewer",
			"dept_viewer": "employee",
			"employee":    "public",
			"public":      "",
		},
		map[string]Classification{
			"admin":       Confidential,
			"dept_admin":  Confidential,
			"dept_viewer": Internal,
			"employee":    Internal,
			"public":      Public,
		},
	)
	if err != nil {
		panic(err) // static table, cannot fail
	}
	return snap
}

// FileLoader loads a YAML policy bundle from disk.
type FileLoader struct {
	Path string
}

type bundleRole struct {
	Inherits string `koanf:"inherits"`
	Ceiling  string `koanf:"ceiling"`
}

type bundle struct {
	Version string                `koanf:"version"`
	Roles   map[string]bundleRole `koanf:"roles"`
}

// Load parses and validates the bundle. Any malformed entry — unknown
// ceiling, unknown parent, inheritance cycle — fails the whole load so a
// bad bundle can never partially apply.
func (l *FileLoader) Load() (*Snapshot, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(l.Path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("reading policy bundle %s: %w", l.Path, err)
	}

	var b bundle
	if err := k.Unmarshal("", &b); err != nil {
		return nil, fmt.Errorf("parsing policy bundle %s: %w", l.Path, err)
	}

	if b.Version == "" {
		return nil, fmt.Errorf("policy bundle %s: missing version", l.Path)
	}
	if len(b.Roles) == 0 {
		return nil, fmt.Errorf("policy bundle %s: no roles defined", l.Path)
	}

	parents := make(map[string]string, len(b.Roles))
	ceilings := make(map[string]Classification, len(b.Roles))
	for role, def := range b.Roles {
		parents[role] = def.Inherits
		c, err := ParseClassification(def.Ceiling)
		if err != nil {
			return nil, fmt.Errorf("policy bundle %s: role %q: %w", l.Path, role, err)
		}
		ceilings[role] = c
	}

	snap, err := NewSnapshot(b.Version, parents, ceilings)
	if err != nil {
		return nil, fmt.Errorf("policy bundle %s: %w", l.Path, err)
	}
	return snap, nil
}
