package errors

import (
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"
)

var placeholder = regexp.MustCompile(`\{(\w+)\}`)

// FormatMessage replaces {name} placeholders in template with the matching
// params entry. Placeholders without a value are left untouched.
func FormatMessage(template string, params map[string]any) string {
	if len(params) == 0 {
		return template
	}
	return placeholder.ReplaceAllStringFunc(template, func(m string) string {
		key := m[1 : len(m)-1]
		if v, ok := params[key]; ok {
			return fmt.Sprint(v)
		}
		return m
	})
}

// Registry maps error codes to definitions. It is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewRegistry creates a registry holding defs.
func NewRegistry(defs ...Definition) *Registry {
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, def := range defs {
		r.defs[def.Code] = def
	}
	return r
}

// NewDefaultRegistry creates a registry preloaded with the built-in codes.
func NewDefaultRegistry() *Registry {
	return NewRegistry(builtinDefinitions...)
}

// Register adds or replaces a definition.
func (r *Registry) Register(def Definition) error {
	if def.Code == "" {
		return ValidationError("error definition requires a code")
	}
	if def.Type == "" {
		def.Type = TypeBusiness
	}
	if def.Severity == "" {
		def.Severity = SeverityError
	}

	r.mu.Lock()
	r.defs[def.Code] = def
	r.mu.Unlock()
	return nil
}

// Lookup returns the definition for code.
func (r *Registry) Lookup(code string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[code]
	return def, ok
}

// Codes returns the registered codes in sorted order.
func (r *Registry) Codes() []string {
	r.mu.RLock()
	codes := make([]string, 0, len(r.defs))
	for code := range r.defs {
		codes = append(codes, code)
	}
	r.mu.RUnlock()

	sort.Strings(codes)
	return codes
}

// Create builds an error from the definition registered for code, filling
// the message template from params. An unknown code yields a non-retryable
// UNEXPECTED error that still carries the requested code.
func (r *Registry) Create(code string, params map[string]any, metadata map[string]any) TypedError {
	def, ok := r.Lookup(code)
	if !ok {
		return unknownCode(code, metadata)
	}
	return fromDefinition(def, FormatMessage(def.MessageTemplate, params), metadata)
}

// CreateWithMessage is Create with an explicit message instead of the
// definition's template.
func (r *Registry) CreateWithMessage(code, message string, metadata map[string]any) TypedError {
	def, ok := r.Lookup(code)
	if !ok {
		err := unknownCode(code, metadata).(*baseError)
		err.message = message
		return err
	}
	return fromDefinition(def, message, metadata)
}

func fromDefinition(def Definition, message string, metadata map[string]any) *baseError {
	md := copyMap(def.Metadata)
	for k, v := range metadata {
		if md == nil {
			md = make(map[string]any, len(metadata))
		}
		md[k] = v
	}
	return &baseError{
		code:      def.Code,
		message:   message,
		errType:   def.Type,
		severity:  def.Severity,
		retryable: def.Retryable,
		metadata:  md,
		timestamp: time.Now(),
	}
}

func unknownCode(code string, metadata map[string]any) TypedError {
	return &baseError{
		code:      code,
		message:   fmt.Sprintf("Unknown error code %q", code),
		errType:   TypeUnexpected,
		severity:  SeverityError,
		retryable: false,
		metadata:  copyMap(metadata),
		timestamp: time.Now(),
	}
}

// builtin creates an error from a built-in definition.
func builtin(code string, params map[string]any) *baseError {
	def := builtins[code]
	return fromDefinition(def, FormatMessage(def.MessageTemplate, params), nil)
}
