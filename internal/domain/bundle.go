package domain

import "sort"

// Executable is one configuration unit (script or recipe) inside a bundle.
type Executable struct {
	// ID identifies the executable for input resolution requests.
	ID string `json:"id" toml:"id"`

	// Name is the human readable title used in audits.
	Name string `json:"name" toml:"name"`

	// Source is the script body handed to the convergence engine.
	Source string `json:"source,omitempty" toml:"source"`

	// Inputs holds resolved input values by name.
	Inputs map[string]string `json:"inputs,omitempty" toml:"inputs"`

	// Missing lists inputs whose values are not yet resolvable.
	Missing []string `json:"missing,omitempty" toml:"missing"`
}

// Ready reports whether every input of the executable is resolved.
func (e Executable) Ready() bool {
	return len(e.Missing) == 0
}

// Bundle is an ordered collection of executables submitted as one unit of work.
type Bundle struct {
	// AuditID references the audit that receives progress for this bundle.
	AuditID string `json:"audit_id,omitempty" toml:"audit_id"`

	// Executables run in order.
	Executables []Executable `json:"executables" toml:"executables"`
}

// Empty reports whether the bundle has nothing to run.
func (b Bundle) Empty() bool {
	return len(b.Executables) == 0
}

// MissingInputs returns the sorted, de-duplicated set of unresolved input names
// keyed by executable id.
func (b Bundle) MissingInputs() map[string][]string {
	missing := make(map[string][]string)
	for _, e := range b.Executables {
		if e.Ready() {
			continue
		}
		names := append([]string(nil), e.Missing...)
		sort.Strings(names)
		missing[e.ID] = names
	}
	return missing
}

// Ready reports whether every executable has its inputs resolved.
func (b Bundle) Ready() bool {
	for _, e := range b.Executables {
		if !e.Ready() {
			return false
		}
	}
	return true
}

// InputResolution carries values for previously missing inputs of one executable.
type InputResolution struct {
	ExecutableID string            `json:"executable_id"`
	Inputs       map[string]string `json:"inputs"`
	Missing      []string          `json:"missing,omitempty"`
}

// Apply merges resolutions into the bundle in place. Executables without a
// resolution are left untouched.
func (b *Bundle) Apply(resolutions []InputResolution) {
	byID := make(map[string]InputResolution, len(resolutions))
	for _, r := range resolutions {
		byID[r.ExecutableID] = r
	}
	for i := range b.Executables {
		e := &b.Executables[i]
		r, ok := byID[e.ID]
		if !ok {
			continue
		}
		if e.Inputs == nil {
			e.Inputs = make(map[string]string, len(r.Inputs))
		}
		for k, v := range r.Inputs {
			e.Inputs[k] = v
		}
		e.Missing = append([]string(nil), r.Missing...)
	}
}

// InputsPatch is the delta the convergence engine asks to push upstream.
type InputsPatch map[string]string

// Empty reports whether the patch carries any values.
func (p InputsPatch) Empty() bool {
	return len(p) == 0
}
