// This file is part of firmsim.
//
// firmsim is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// firmsim is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with firmsim.  If not, see <https://www.gnu.org/licenses/>.

package errors

import (
	"fmt"
	"strings"
)

// Values is the type used to specify arguments for FormattedErrors
type Values []interface{}

// curated erorrs allow code to specify a predefined error and not worry too
// much about the message behind that error and how the message will be
// formatted on output.
type curated struct {
	message string
	values  Values
}

// Errorf creates a new curated error
func Errorf(message string, values ...interface{}) error {
	return curated{
		message: message,
		values:  values,
	}
}

// Error returns the normalised error message. Normalisation being the removal
// of duplicate adjacent error messsage parts.
//
// Implements the go language error interface.
func (er curated) Error() string {
	s := fmt.Errorf(er.message, er.values...).Error()

	// de-duplicate error message parts
	p := strings.SplitN(s, ": ", 3)
	if len(p) > 1 && p[0] == p[1] {
		return strings.Join(p[1:], ": ")
	}

	return strings.Join(p, ": ")
}

// Head returns the leading part of the message.
//
// Similar to Is() but returns the string rather than a boolean. Useful for
// switches.
//
// If err is a plain error then the return of Error() is returned
func Head(err error) string {
	if er, ok := err.(curated); ok {
		return er.message
	}
	return err.Error()
}

// IsAny checks if error is being curated by this package
func IsAny(err error) bool {
	if err == nil {
		return false
	}

	if _, ok := err.(curated); ok {
		return true
	}
	return false
}

// Is checks if error has a specific head
func Is(err error, head string) bool {
	if err == nil {
		return false
	}

	if er, ok := err.(curated); ok {
		return er.message == head
	}
	return false
}

// Category is a coarse-grained classification of a curated error,
// grouping the individual message constants messages.go defines
// (bus/memory, decoder, cpu/run loop, loader, configuration, snapshot)
// into the handful of buckets a caller like RunResult or a CLI exit-code
// mapping actually wants to switch on, without matching against every
// message constant individually.
type Category int

const (
	// CategoryOther covers a non-curated error, or a curated one outside
	// the groupings below.
	CategoryOther Category = iota
	CategoryMemory
	CategoryDecode
	CategoryRunLoop
	CategoryLoader
	CategoryConfig
	CategorySnapshot
)

// CategoryOf classifies err by its curated head, mirroring messages.go's
// comment groupings.
func CategoryOf(err error) Category {
	if err == nil || !IsAny(err) {
		return CategoryOther
	}
	switch Head(err) {
	case MemoryViolation, StraddledAccess, OverlappingRegion:
		return CategoryMemory
	case DecodeError, UnsupportedInstruction:
		return CategoryDecode
	case NoProgress:
		return CategoryRunLoop
	case LoaderError:
		return CategoryLoader
	case ConfigError, ConfigOverlap, ConfigUnknownArch, ConfigBadSize:
		return CategoryConfig
	case SnapshotError, SnapshotArchMismatch, SnapshotMissingPeripheral:
		return CategorySnapshot
	default:
		return CategoryOther
	}
}

// Has checks if the message string appears somewhere in the error
func Has(err error, msg string) bool {
	if err == nil {
		return false
	}

	if !IsAny(err) {
		return false
	}

	if Is(err, msg) {
		return true
	}

	for i := range err.(curated).values {
		if e, ok := err.(curated).values[i].(curated); ok {
			if Has(e, msg) {
				return true
			}
		}
	}

	return false
}
