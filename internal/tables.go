package dynabind

import (
	"fmt"
	"reflect"
)

// MethodEntry describes one exposed method before table generation. Entries
// are ordered; duplicate names are not rejected here, the lookup built from
// the finished table resolves them last-wins.
type MethodEntry struct {
	Name  string
	Func  NativeFunc
	Flags MethodFlags
}

// GetSetEntry describes one exposed attribute. A nil Set makes the attribute
// read-only. A nil Get is a configuration error: every attribute with a
// setter must also have a getter.
type GetSetEntry struct {
	Name string
	Get  NativeGetter
	Set  NativeSetter
}

// retentionStore is the process-lifetime arena for generated tables. The
// type objects handed to the embedded runtime keep raw references into these
// tables with no ownership signal back, so the store only ever appends and
// is never reclaimed. Redefining a type intentionally leaks the previous
// tables in exchange for the guarantee that no type object ever reads freed
// memory.
type retentionStore struct {
	methodTables [][]MethodDef
	getsetTables [][]GetSetDef
}

// retained is shared by all runtimes in the process. It is only written from
// the single interpreter thread, so no locking is performed.
var retained = &retentionStore{}

func (s *retentionStore) retainMethods(table []MethodDef) []MethodDef {
	s.methodTables = append(s.methodTables, table)
	return table
}

func (s *retentionStore) retainGetSets(table []GetSetDef) []GetSetDef {
	s.getsetTables = append(s.getsetTables, table)
	return table
}

// RetainedTableCount reports how many tables the process has accumulated,
// shadowed definitions included.
func RetainedTableCount() (methods int, getsets int) {
	return len(retained.methodTables), len(retained.getsetTables)
}

// makeMethodDefs generates one call trampoline per entry and lays the result
// out as a sentinel-terminated table. The table is retained before it is
// returned: retention must precede handing its address to a type object.
func makeMethodDefs(native reflect.Type, entries []MethodEntry) ([]MethodDef, error) {
	defs := make([]MethodDef, 0, len(entries)+1)
	for i := range entries {
		e := entries[i]
		if e.Name == "" || e.Func == nil {
			return nil, newConfigurationError("method entry %d for %v is incomplete", i, native)
		}
		flags := e.Flags
		if flags == 0 {
			flags = MethodVarargs | MethodKeywords
		}
		symbol := fmt.Sprintf("%v.%s", native, e.Name)
		defs = append(defs, MethodDef{
			Name:  e.Name,
			Call:  makeCallTrampoline(symbol, e.Func, native),
			Flags: flags,
		})
	}
	defs = append(defs, MethodDef{})
	return retained.retainMethods(defs), nil
}

// makeGetSetDefs generates getter and setter trampolines per entry, with a
// read-only set slot when no setter was supplied, and lays the result out as
// a sentinel-terminated, retained table.
func makeGetSetDefs(native reflect.Type, entries []GetSetEntry) ([]GetSetDef, error) {
	defs := make([]GetSetDef, 0, len(entries)+1)
	for i := range entries {
		e := entries[i]
		if e.Name == "" {
			return nil, newConfigurationError("getset entry %d for %v has no name", i, native)
		}
		if e.Get == nil {
			if e.Set != nil {
				return nil, newConfigurationError("attribute %q of %v has a setter but no getter", e.Name, native)
			}
			return nil, newConfigurationError("attribute %q of %v has no getter", e.Name, native)
		}

		symbol := fmt.Sprintf("%v.%s", native, e.Name)
		def := GetSetDef{
			Name: e.Name,
			Get:  makeGetTrampoline(symbol, e.Get, native),
		}
		if e.Set != nil {
			def.Set = makeSetTrampoline(symbol, e.Set, native)
		} else {
			def.Set = makeReadOnlySetSlot(symbol)
		}
		defs = append(defs, def)
	}
	defs = append(defs, GetSetDef{})
	return retained.retainGetSets(defs), nil
}
