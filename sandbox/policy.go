package sandbox

import (
	"errors"
	"fmt"
	"time"
)

// ResourceLimits bounds a worker process. Zero means unlimited for the
// individual field.
type ResourceLimits struct {
	// CPUTime is the CPU time ceiling.
	CPUTime time.Duration

	// MemoryBytes caps the worker's address space.
	MemoryBytes int64

	// FileSizeBytes caps the size of any file the worker creates.
	FileSizeBytes int64

	// MaxProcesses caps the number of processes the worker may hold.
	MaxProcesses int64
}

// Validate checks ResourceLimits for invalid values.
func (r ResourceLimits) Validate() error {
	if r.CPUTime < 0 {
		return errors.New("cpu time cannot be negative")
	}
	if r.MemoryBytes < 0 {
		return errors.New("memory cannot be negative")
	}
	if r.FileSizeBytes < 0 {
		return errors.New("file size cannot be negative")
	}
	if r.MaxProcesses < 0 {
		return errors.New("max processes cannot be negative")
	}
	return nil
}

// Policy restricts what sandboxed logic may reference and how many
// resources its worker may consume. A Policy is immutable per executor
// instance.
type Policy struct {
	// AllowedImports are the module/package names script logic may
	// import. Paths match exactly: "os" does not cover "os/exec".
	AllowedImports []string

	// AllowedCommands are the programs a command tool or script
	// interpreter may invoke, matched on the bare program name.
	AllowedCommands []string

	// DeniedTokens reject script source outright when present,
	// regardless of imports. Defaults cover dynamic evaluation and
	// shell/process spawning primitives.
	DeniedTokens []string

	// Limits bounds the worker process.
	Limits ResourceLimits
}

// DefaultPolicy returns the standard allow/deny sets and resource limits.
func DefaultPolicy() Policy {
	return Policy{
		AllowedImports: []string{
			// Go standard library, computation and formatting only.
			"fmt", "strings", "strconv", "math", "sort", "time",
			"errors", "bytes", "unicode", "regexp", "slices", "maps",
			"encoding", "encoding/json", "encoding/csv",
			// Script-language module names.
			"json", "csv", "re", "datetime", "collections", "itertools",
			"functools", "operator", "string", "random", "typing", "io",
		},
		AllowedCommands: []string{
			"python3", "node", "jq",
		},
		DeniedTokens: []string{
			"eval(", "exec(", "compile(", "__import__", "subprocess",
			"os.system", "popen", "spawn", "child_process", "execfile",
			"Function(",
		},
		Limits: ResourceLimits{
			CPUTime:       5 * time.Second,
			MemoryBytes:   100 << 20, // 100 MB
			FileSizeBytes: 1 << 20,   // 1 MB
			MaxProcesses:  1,
		},
	}
}

// Validate checks the policy for configuration errors.
func (p Policy) Validate() error {
	if err := p.Limits.Validate(); err != nil {
		return fmt.Errorf("%w: limits: %s", ErrConfiguration, err)
	}
	return nil
}

// isZero reports whether the policy is entirely unset, which selects the
// defaults.
func (p Policy) isZero() bool {
	return len(p.AllowedImports) == 0 && len(p.AllowedCommands) == 0 &&
		len(p.DeniedTokens) == 0 && p.Limits == (ResourceLimits{})
}

// allowsImport reports whether path passes the import allow-list.
func (p Policy) allowsImport(path string) bool {
	for _, allowed := range p.AllowedImports {
		if path == allowed {
			return true
		}
	}
	return false
}

// allowsCommand reports whether program passes the command allow-list.
func (p Policy) allowsCommand(program string) bool {
	for _, allowed := range p.AllowedCommands {
		if program == allowed {
			return true
		}
	}
	return false
}
