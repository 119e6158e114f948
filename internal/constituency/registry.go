package constituency

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
)

// Count is the number of Westminster constituencies, the K in the salience ratio
const Count = 650

//go:embed constituencies.txt
var embedded string

// Registry is an immutable set of constituency names
type Registry struct {
	names []string
	index map[string]struct{}
}

// Default returns the registry built from the embedded 2024 boundary list
func Default() *Registry {
	r, err := Parse(strings.NewReader(embedded))
	if err != nil {
		panic(fmt.Sprintf("embedded constituency list: %v", err))
	}
	return r
}

// Load reads a registry from a file, one name per line
func Load(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open constituency file: %w", err)
	}
	defer f.Close()

	r, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return r, nil
}

// Parse reads one name per line. Blank lines and lines starting with # are ignored.
func Parse(rd io.Reader) (*Registry, error) {
	r := &Registry{index: make(map[string]struct{})}

	scanner := bufio.NewScanner(rd)
	line := 0
	for scanner.Scan() {
		line++
		name := strings.TrimSpace(scanner.Text())
		if name == "" || strings.HasPrefix(name, "#") {
			continue
		}
		if _, dup := r.index[name]; dup {
			return nil, fmt.Errorf("line %d: duplicate constituency %q", line, name)
		}
		r.index[name] = struct{}{}
		r.names = append(r.names, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read constituencies: %w", err)
	}
	if len(r.names) == 0 {
		return nil, fmt.Errorf("no constituencies found")
	}
	return r, nil
}

// Contains reports whether name is a known constituency
func (r *Registry) Contains(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.index[name]
	return ok
}

// Names returns constituency names in file order
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the number of constituencies
func (r *Registry) Len() int {
	return len(r.names)
}
