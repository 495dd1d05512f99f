package sandbox

import (
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/isdmx/execbox/config"
)

// File permission constants
const (
	FilePermission           = 0o600
	ExecutableFilePermission = 0o700
)

// Runtime is one canonical execution engine: the interpreter command, the
// extension of the source file handed to it, and the names that select it.
type Runtime struct {
	Name       string
	Command    string
	Args       []string
	Extension  string
	Executable bool
	Aliases    []string
	Image      string
	Env        []string
}

// FileMode is the permission of the source file written for this runtime
func (rt Runtime) FileMode() os.FileMode {
	if rt.Executable {
		return ExecutableFilePermission
	}
	return FilePermission
}

func (rt Runtime) clone() Runtime {
	rt.Args = slices.Clone(rt.Args)
	rt.Aliases = slices.Clone(rt.Aliases)
	rt.Env = slices.Clone(rt.Env)
	return rt
}

// Registry maps request language names onto canonical runtimes. It is built
// once and never mutated, so it is safe for concurrent use.
type Registry struct {
	runtimes map[string]Runtime
	aliases  map[string]string
	// read-only after construction
	allowed mapset.Set[string]
}

// NewRegistry builds a registry. Names and aliases are matched
// case-insensitively and must be unique across runtimes.
func NewRegistry(runtimes ...Runtime) (*Registry, error) {
	if len(runtimes) == 0 {
		return nil, fmt.Errorf("registry needs at least one runtime")
	}

	r := &Registry{
		runtimes: make(map[string]Runtime, len(runtimes)),
		aliases:  make(map[string]string),
		allowed:  mapset.NewThreadUnsafeSet[string](),
	}

	for _, rt := range runtimes {
		name := normalizeName(rt.Name)
		if name == "" {
			return nil, fmt.Errorf("runtime with command %q has no name", rt.Command)
		}
		if rt.Command == "" {
			return nil, fmt.Errorf("runtime %s has no command", name)
		}
		if !strings.HasPrefix(rt.Extension, ".") {
			return nil, fmt.Errorf("runtime %s has invalid extension %q", name, rt.Extension)
		}
		rt = rt.clone()
		rt.Name = name

		for _, alias := range append([]string{name}, rt.Aliases...) {
			key := normalizeName(alias)
			if owner, taken := r.aliases[key]; taken && owner != name {
				return nil, fmt.Errorf("alias %q is claimed by both %s and %s", key, owner, name)
			}
			r.aliases[key] = name
			r.allowed.Add(key)
		}
		r.runtimes[name] = rt
	}

	return r, nil
}

// RegistryFromConfig builds the registry from the languages section
func RegistryFromConfig(langs map[string]config.Language) (*Registry, error) {
	names := make([]string, 0, len(langs))
	for name := range langs {
		names = append(names, name)
	}
	sort.Strings(names)

	runtimes := make([]Runtime, 0, len(langs))
	for _, name := range names {
		lang := langs[name]
		runtimes = append(runtimes, Runtime{
			Name:       name,
			Command:    lang.Command,
			Args:       lang.Args,
			Extension:  lang.Extension,
			Executable: lang.Executable,
			Aliases:    lang.Aliases,
			Image:      lang.Image,
			Env:        lang.Env,
		})
	}

	return NewRegistry(runtimes...)
}

// DefaultRegistry returns the bash / python / node registry
func DefaultRegistry() *Registry {
	r, err := RegistryFromConfig(config.DefaultLanguages())
	if err != nil {
		panic(err) // built-in table is static
	}
	return r
}

func normalizeName(lang string) string {
	return strings.ToLower(lang)
}

// Normalize maps a language name or alias to its canonical runtime name.
// Unknown names come back lower-cased.
func (r *Registry) Normalize(lang string) string {
	key := normalizeName(lang)
	if name, ok := r.aliases[key]; ok {
		return name
	}
	return key
}

// Resolve returns the runtime for a language name or alias
func (r *Registry) Resolve(lang string) (Runtime, error) {
	key := normalizeName(lang)
	if !r.allowed.Contains(key) {
		return Runtime{}, &ValidationError{
			Field:   "lang",
			Message: fmt.Sprintf("language %q is not allowed, must be one of: %s", lang, strings.Join(r.Names(), ", ")),
		}
	}
	return r.runtimes[r.aliases[key]].clone(), nil
}

// Names returns every accepted language name, aliases included, sorted
func (r *Registry) Names() []string {
	names := r.allowed.ToSlice()
	sort.Strings(names)
	return names
}

// Runtimes returns the canonical runtimes sorted by name
func (r *Registry) Runtimes() []Runtime {
	out := make([]Runtime, 0, len(r.runtimes))
	for _, rt := range r.runtimes {
		out = append(out, rt.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
