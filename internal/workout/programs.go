package workout

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

type programFile struct {
	Programs []Program `toml:"program"`
}

// ParsePrograms reads programs from TOML:
//
//	[[program]]
//	name = "Scheduled"
//	  [[program.phase]]
//	  name = "Warm-up"
//	  duration_minutes = 2.0
//	  [[program.phase]]
//	  name = "4x500m"
//	  distance_meters = 500.0
//	  repeat = 4
func ParsePrograms(data []byte) ([]Program, error) {
	var f programFile
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse programs: %w", err)
	}

	seen := make(map[string]bool, len(f.Programs))
	for _, prog := range f.Programs {
		if seen[prog.Name] {
			return nil, fmt.Errorf("duplicate program %q", prog.Name)
		}
		seen[prog.Name] = true
	}
	return f.Programs, nil
}

// LoadPrograms parses the programs file at path and registers every program.
// A missing file is not an error.
func (p *Planner) LoadPrograms(path string) (int, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read programs file: %w", err)
	}

	programs, err := ParsePrograms(data)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	for _, prog := range programs {
		if err := p.Register(prog); err != nil {
			return 0, fmt.Errorf("%s: %w", path, err)
		}
	}
	return len(programs), nil
}
