package errors

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Failure is one fatal error attributed to the module that owns it.
type Failure struct {
	Module string
	Err    error
}

// Report collects fatal failures, lint diagnostics and cycle warnings for one
// run. It is safe for concurrent use by pipeline workers.
type Report struct {
	failures    []Failure
	diagnostics []LintDiagnostic
	cycles      []CycleWarning
	mutex       sync.RWMutex
}

// NewReport creates an empty report
func NewReport() *Report {
	return &Report{}
}

// AddFailure records a fatal error for a module.
func (r *Report) AddFailure(module string, err error) {
	if err == nil {
		return
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.failures = append(r.failures, Failure{Module: module, Err: err})
}

// AddDiagnostics records lint findings.
func (r *Report) AddDiagnostics(diags ...LintDiagnostic) {
	if len(diags) == 0 {
		return
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.diagnostics = append(r.diagnostics, diags...)
}

// AddCycle records a circular import warning.
func (r *Report) AddCycle(w CycleWarning) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.cycles = append(r.cycles, w)
}

// Merge appends everything from other into r.
func (r *Report) Merge(other *Report) {
	if other == nil || other == r {
		return
	}
	other.mutex.RLock()
	failures := append([]Failure(nil), other.failures...)
	diags := append([]LintDiagnostic(nil), other.diagnostics...)
	cycles := append([]CycleWarning(nil), other.cycles...)
	other.mutex.RUnlock()

	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.failures = append(r.failures, failures...)
	r.diagnostics = append(r.diagnostics, diags...)
	r.cycles = append(r.cycles, cycles...)
}

// Failures returns fatal failures sorted by module then message.
func (r *Report) Failures() []Failure {
	r.mutex.RLock()
	result := make([]Failure, len(r.failures))
	copy(result, r.failures)
	r.mutex.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Module != result[j].Module {
			return result[i].Module < result[j].Module
		}
		return result[i].Err.Error() < result[j].Err.Error()
	})
	return result
}

// Diagnostics returns lint findings sorted by module and line.
func (r *Report) Diagnostics() []LintDiagnostic {
	r.mutex.RLock()
	result := make([]LintDiagnostic, len(r.diagnostics))
	copy(result, r.diagnostics)
	r.mutex.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Module != result[j].Module {
			return result[i].Module < result[j].Module
		}
		return result[i].Line < result[j].Line
	})
	return result
}

// Cycles returns the recorded circular import warnings.
func (r *Report) Cycles() []CycleWarning {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	result := make([]CycleWarning, len(r.cycles))
	copy(result, r.cycles)
	return result
}

// BrokenModules lists every module with at least one fatal failure, sorted.
func (r *Report) BrokenModules() []string {
	seen := make(map[string]bool)
	var modules []string
	for _, f := range r.Failures() {
		if !seen[f.Module] {
			seen[f.Module] = true
			modules = append(modules, f.Module)
		}
	}
	return modules
}

// HasFatal reports whether the run must end in the error state. Lint errors
// count only when lintFatal is set.
func (r *Report) HasFatal(lintFatal bool) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if len(r.failures) > 0 {
		return true
	}
	if !lintFatal {
		return false
	}
	for _, d := range r.diagnostics {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Err summarizes the fatal state as a single error, or nil.
func (r *Report) Err(lintFatal bool) error {
	if !r.HasFatal(lintFatal) {
		return nil
	}
	failures := r.Failures()
	if len(failures) == 0 {
		var first error
		count := 0
		for _, d := range r.Diagnostics() {
			if d.Severity == SeverityError {
				if first == nil {
					first = d
				}
				count++
			}
		}
		return ErrBuildFailed(count, fmt.Errorf("lint errors are fatal: %w", first))
	}
	errs := make([]error, 0, len(failures))
	for _, f := range failures {
		errs = append(errs, f.Err)
	}
	return ErrBuildFailed(len(r.BrokenModules()), errors.Join(errs...))
}
