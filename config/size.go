package config

import (
	"strconv"
	"strings"

	"github.com/opsilicon/firmsim/errors"
)

// ByteSize is a uint32 byte count that unmarshals from either a plain
// integer or a suffixed string ("128KB", "1MB") in a chip descriptor's
// flash/ram size fields.
type ByteSize uint32

// ParseByteSize parses a size string. Accepted suffixes are "B", "KB" and
// "MB" (case-insensitive); a bare numeral is interpreted as bytes.
func ParseByteSize(s string) (ByteSize, error) {
	s = strings.TrimSpace(s)
	upper := strings.ToUpper(s)

	multiplier := uint64(1)
	numeric := upper
	switch {
	case strings.HasSuffix(upper, "MB"):
		multiplier = 1024 * 1024
		numeric = strings.TrimSuffix(upper, "MB")
	case strings.HasSuffix(upper, "KB"):
		multiplier = 1024
		numeric = strings.TrimSuffix(upper, "KB")
	case strings.HasSuffix(upper, "B"):
		numeric = strings.TrimSuffix(upper, "B")
	}

	numeric = strings.TrimSpace(numeric)
	n, err := strconv.ParseUint(numeric, 10, 32)
	if err != nil {
		return 0, errors.Errorf(errors.ConfigBadSize, s)
	}
	return ByteSize(n * multiplier), nil
}

// UnmarshalYAML accepts either a YAML integer scalar or a suffixed string
// scalar, so a descriptor can write `size: 131072` or `size: "128KB"`
// interchangeably.
func (b *ByteSize) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case int:
		*b = ByteSize(v)
		return nil
	case int64:
		*b = ByteSize(v)
		return nil
	case string:
		parsed, err := ParseByteSize(v)
		if err != nil {
			return err
		}
		*b = parsed
		return nil
	default:
		return errors.Errorf(errors.ConfigBadSize, v)
	}
}
