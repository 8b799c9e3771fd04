package scan

import (
	"io"

	"github.com/3leaps/specguard/pkg/yamldoc"
)

// ParseYAML checks that r holds at most one YAML document built only from
// core-schema tags. An empty stream is valid.
func ParseYAML(r io.Reader) error {
	_, err := yamldoc.Decode(r)
	return err
}
