package util

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors used throughout gridsync
var (
	ErrUnknownTable    = errors.New("unknown table")
	ErrNoBackend       = errors.New("no backend configured")
	ErrNotInteractive  = errors.New("not an interactive terminal")
	ErrInvalidView     = errors.New("invalid view parameter")
	ErrUnknownFormat   = errors.New("unknown export format")
	ErrConfigKeyNotSet = errors.New("config key not found")
)

// GridError is a structured error with context and suggestions
type GridError struct {
	Title       string   // Short error title
	Message     string   // Detailed message
	Context     string   // What was being attempted
	Causes      []string // Possible causes
	Suggestions []string // Commands worth trying
	Err         error
}

func (e *GridError) Error() string {
	if e.Err != nil {
		return e.Title + ": " + e.Err.Error()
	}
	return e.Title
}

func (e *GridError) Unwrap() error {
	return e.Err
}

// Format renders the error for a terminal.
func (e *GridError) Format() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Error: %s\n", e.Title)

	if e.Message != "" {
		fmt.Fprintf(&sb, "\n  %s\n", e.Message)
	}
	if e.Context != "" {
		fmt.Fprintf(&sb, "\n  %s\n", e.Context)
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, "\n  Cause: %v\n", e.Err)
	}

	if len(e.Causes) > 0 {
		sb.WriteString("\n  Possible causes:\n")
		for _, cause := range e.Causes {
			fmt.Fprintf(&sb, "    • %s\n", cause)
		}
	}

	if len(e.Suggestions) > 0 {
		sb.WriteString("\n  Try:\n")
		for _, sug := range e.Suggestions {
			fmt.Fprintf(&sb, "    $ %s\n", sug)
		}
	}

	return sb.String()
}

// NewError creates a new GridError
func NewError(title string) *GridError {
	return &GridError{Title: title}
}

// WithMessage sets the detailed message
func (e *GridError) WithMessage(msg string) *GridError {
	e.Message = msg
	return e
}

// WithContext records what was being attempted
func (e *GridError) WithContext(ctx string) *GridError {
	e.Context = ctx
	return e
}

// WithCauses appends possible causes
func (e *GridError) WithCauses(causes ...string) *GridError {
	e.Causes = append(e.Causes, causes...)
	return e
}

// WithSuggestions appends suggested commands
func (e *GridError) WithSuggestions(sugs ...string) *GridError {
	e.Suggestions = append(e.Suggestions, sugs...)
	return e
}

// Wrap sets the underlying error
func (e *GridError) Wrap(err error) *GridError {
	e.Err = err
	return e
}

// ══════════════════════════════════════════════════════════════════════════
// Pre-built errors for common cases
// ══════════════════════════════════════════════════════════════════════════

// UnknownTableError is returned when no profile exists for name.
func UnknownTableError(name string, known []string) *GridError {
	e := NewError(fmt.Sprintf("Unknown table '%s'", name)).
		WithSuggestions("gridsync tables        # List configured tables").
		Wrap(ErrUnknownTable)
	if len(known) > 0 {
		e.WithMessage("Configured tables: " + strings.Join(known, ", "))
	}
	return e
}

// APIError wraps a failed call to the REST backend.
func APIError(baseURL string, err error) *GridError {
	return NewError("Request to backend failed").
		WithContext(baseURL).
		WithCauses(
			"The backend is not running or not reachable",
			"The API token is missing or expired",
			"The table endpoint is misconfigured",
		).
		WithSuggestions(
			"gridsync config api.base_url          # Show the configured backend",
			"gridsync config api.token <token>     # Set a token",
		).
		Wrap(err)
}

// DatabaseConnectionError wraps a failed direct database connection.
func DatabaseConnectionError(url string, err error) *GridError {
	return NewError("Cannot connect to database").
		WithContext(url).
		WithCauses(
			"Database server is not running",
			"Invalid connection credentials",
			"Network connectivity issues",
		).
		WithSuggestions(
			"gridsync config database.url          # Show the configured URL",
			"gridsync config database.url \"\"       # Use the REST backend instead",
		).
		Wrap(err)
}

// NoBackendError is returned when neither an API URL nor a database URL is set.
func NoBackendError() *GridError {
	return NewError("No backend configured").
		WithMessage("gridsync needs either a REST backend or a Postgres database").
		WithSuggestions(
			"gridsync config api.base_url http://localhost:8080/api",
			"gridsync config database.url postgres://user@localhost/assets",
		).
		Wrap(ErrNoBackend)
}

// InvalidViewError reports a view flag that could not be parsed.
func InvalidViewError(flag, value, example string) *GridError {
	e := NewError(fmt.Sprintf("Invalid --%s value '%s'", flag, value)).Wrap(ErrInvalidView)
	if example != "" {
		e.WithSuggestions(example)
	}
	return e
}

// MissingArgumentError returns an error for a missing required argument
func MissingArgumentError(argName, example string) *GridError {
	e := NewError(fmt.Sprintf("Missing required argument: <%s>", argName))
	if example != "" {
		e.WithSuggestions(example)
	}
	return e
}
