package policy

import "reflect"

// Result summarizes a successful check.
type Result struct {
	// Snapshots is the number of snapshot schedules.
	Snapshots int

	// ReplicationTargets and OffsiteTargets count configured targets.
	// A non-empty scalar value counts as one target.
	ReplicationTargets int
	OffsiteTargets     int

	// Warnings are non-fatal findings, in the order they were detected.
	Warnings []string
}

// HasWarnings reports whether the check produced any warnings.
func (r *Result) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// Check runs the semantic checks on a loaded policy.
//
// It fails with a ValidationError when snapshots are missing or empty, or
// when snapshots is set to something other than a sequence. A policy with
// neither replication nor off-site backup passes with a warning.
func Check(doc *Document) (*Result, error) {
	if doc == nil || doc.Raw == nil || !truthy(doc.Raw[KeySnapshots]) {
		return nil, ValidationError{Message: MsgMissingSnapshots}
	}

	snapshots := doc.Snapshots()
	if len(snapshots) == 0 {
		return nil, ValidationError{Message: MsgNoSchedules}
	}

	res := &Result{
		Snapshots:          len(snapshots),
		ReplicationTargets: countTargets(doc.Raw[KeyReplication]),
		OffsiteTargets:     countTargets(doc.Raw[KeyOffsiteBackup]),
	}

	if res.ReplicationTargets == 0 && res.OffsiteTargets == 0 {
		res.Warnings = append(res.Warnings, WarnNoOffsite)
	}

	return res, nil
}

func countTargets(v any) int {
	if !truthy(v) {
		return 0
	}
	if seq, ok := v.([]any); ok {
		return len(seq)
	}
	return 1
}

// truthy treats nil, false, zero numbers and empty strings, sequences and
// mappings as absent.
func truthy(v any) bool {
	if v == nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Slice, reflect.Map:
		return rv.Len() > 0
	}
	return true
}
