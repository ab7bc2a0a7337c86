package persistence

import "fmt"

// StorageLayerError marks transient infrastructure failures. The stage
// consumer aborts without committing the offset when it sees one, so the
// broker redelivers the message.
type StorageLayerError struct {
	Message string
}

func (e StorageLayerError) Error() string {
	if len(e.Message) == 0 {
		return "error in underlying storage layer"
	}
	return fmt.Sprintf("error in underlying storage layer: %s", e.Message)
}

// NotFoundError marks a missing record. Treated as a configuration error,
// never retried.
type NotFoundError struct {
	Kind string
	Id   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Id)
}
