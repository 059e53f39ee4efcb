package routine

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultName is the routine run when none is selected.
const DefaultName = "skills"

//go:embed routines/*.toml
var embedded embed.FS

// Parse decodes and validates a TOML routine script.
func Parse(data []byte) (Routine, error) {
	var r Routine
	md, err := toml.Decode(string(data), &r)
	if err != nil {
		return Routine{}, fmt.Errorf("decode routine: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Routine{}, fmt.Errorf("routine %s: unknown keys: %s", r.Name, strings.Join(keys, ", "))
	}
	if err := r.Validate(); err != nil {
		return Routine{}, err
	}
	return r, nil
}

// LoadFile reads a routine script from disk.
func LoadFile(filename string) (Routine, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return Routine{}, fmt.Errorf("read routine: %w", err)
	}
	r, err := Parse(data)
	if err != nil {
		return Routine{}, fmt.Errorf("%s: %w", filename, err)
	}
	return r, nil
}

// Names lists the built-in routines, sorted.
func Names() []string {
	entries, err := fs.ReadDir(embedded, "routines")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), ".toml"); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Get returns the built-in routine called name.
func Get(name string) (Routine, error) {
	data, err := embedded.ReadFile(path.Join("routines", name+".toml"))
	if err != nil {
		return Routine{}, fmt.Errorf("unknown routine %q (have %s)", name, strings.Join(Names(), ", "))
	}
	r, err := Parse(data)
	if err != nil {
		return Routine{}, fmt.Errorf("built-in routine %s: %w", name, err)
	}
	return r, nil
}

// All returns every built-in routine in name order.
func All() ([]Routine, error) {
	var all []Routine
	for _, name := range Names() {
		r, err := Get(name)
		if err != nil {
			return nil, err
		}
		all = append(all, r)
	}
	return all, nil
}

// Load resolves a routine by built-in name, or by file path when ref ends in .toml.
// An empty ref selects DefaultName.
func Load(ref string) (Routine, error) {
	if ref == "" {
		ref = DefaultName
	}
	if strings.HasSuffix(ref, ".toml") {
		return LoadFile(ref)
	}
	return Get(ref)
}
