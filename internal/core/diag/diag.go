// Package diag defines analysis diagnostics and the collector that
// accumulates them in emission order.
package diag

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownSeverity is returned when parsing an unrecognised severity.
var ErrUnknownSeverity = errors.New("unknown severity")

// =============================================================================
// Severity
// =============================================================================

// Severity orders diagnostics. Only SeverityError makes a definition fail.
type Severity int

const (
	SeverityHidden Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityHidden:
		return "hidden"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseSeverity parses the lower-case severity name.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hidden", "none", "silent":
		return SeverityHidden, nil
	case "info":
		return SeverityInfo, nil
	case "warning", "warn":
		return SeverityWarning, nil
	case "error":
		return SeverityError, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSeverity, s)
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// =============================================================================
// Kinds
// =============================================================================

// Kind identifies a diagnostic class.
type Kind string

const (
	KindInvalidMetadata        Kind = "invalid_metadata"
	KindUnableToResolve        Kind = "unable_to_resolve"
	KindCyclicDependency       Kind = "cyclic_dependency"
	KindLifetimeDefect         Kind = "lifetime_defect"
	KindTypeCannotBeInferred   Kind = "type_cannot_be_inferred"
	KindOverriddenBinding      Kind = "overridden_binding"
	KindMetadataDefect         Kind = "metadata_defect"
	KindTypeArgInResolveMethod Kind = "type_arg_in_resolve_method"
)

// Kinds lists every diagnostic kind.
var Kinds = []Kind{
	KindInvalidMetadata,
	KindUnableToResolve,
	KindCyclicDependency,
	KindLifetimeDefect,
	KindTypeCannotBeInferred,
	KindOverriddenBinding,
	KindMetadataDefect,
	KindTypeArgInResolveMethod,
}

// DefaultSeverity is the severity a kind carries unless overridden.
func DefaultSeverity(k Kind) Severity {
	switch k {
	case KindOverriddenBinding, KindMetadataDefect, KindTypeArgInResolveMethod:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// Overrides replaces the default severity per kind.
type Overrides map[Kind]Severity

// =============================================================================
// Locations and Diagnostics
// =============================================================================

// Location points at a declaration site in a definition source.
type Location struct {
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

func (l Location) String() string {
	if l.Line == 0 {
		if l.File == "" {
			return "<unknown>"
		}
		return l.File
	}
	return l.File + ":" + strconv.Itoa(l.Line) + ":" + strconv.Itoa(l.Column)
}

// IsZero reports whether the location is unset.
func (l Location) IsZero() bool {
	return l == Location{}
}

// Diagnostic is one reported finding.
type Diagnostic struct {
	Kind     Kind     `json:"kind"`
	Severity Severity `json:"severity"`
	Template string   `json:"template"`
	Params   []string `json:"params,omitempty"`
	Location Location `json:"location"`
	Root     string   `json:"root,omitempty"`
}

// Message expands {0}, {1}... in the template with Params.
func (d Diagnostic) Message() string {
	if len(d.Params) == 0 {
		return d.Template
	}
	pairs := make([]string, 0, len(d.Params)*2)
	for i, p := range d.Params {
		pairs = append(pairs, "{"+strconv.Itoa(i)+"}", p)
	}
	return strings.NewReplacer(pairs...).Replace(d.Template)
}

// Fatal reports whether the diagnostic fails the definition.
func (d Diagnostic) Fatal() bool {
	return d.Severity >= SeverityError
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s %s: %s", d.Location, d.Severity, d.Kind, d.Message())
}
