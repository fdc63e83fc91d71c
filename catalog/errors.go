package catalog

import "fmt"

// StructureError indicates the grid's row container could not be located in
// the markup at all. Individual malformed rows are skipped silently; this
// error means the upstream page structure changed incompatibly and no partial
// snapshot can be produced.
type StructureError struct {
	Selector string
}

func (e StructureError) Error() string {
	return fmt.Sprintf("catalog structure: no rows matched %q", e.Selector)
}
