package curated

import (
	"errors"
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

var (
	// ErrLoadFailed indicates the table file could not be read or parsed
	ErrLoadFailed = errors.New("curated table load failed")
)

// maxTableSize caps the table file at 1MB.
const maxTableSize = 1024 * 1024

// fileFormat is the YAML document shape of a curated table file.
type fileFormat struct {
	Responses []Response `koanf:"responses"`
}

// LoadFile reads a curated table from a YAML file. An empty responses list
// is valid and yields an empty table.
func LoadFile(path string) (*Table, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}
	if info.Size() > maxTableSize {
		return nil, fmt.Errorf("%w: file too large (%d bytes, max %d)", ErrLoadFailed, info.Size(), maxTableSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}

	return Parse(data)
}

// Parse builds a table from YAML bytes.
func Parse(data []byte) (*Table, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}

	var doc fileFormat
	if err := k.Unmarshal("", &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}

	table, err := NewTable(doc.Responses)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}
	return table, nil
}
