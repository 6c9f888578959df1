package event

import "time"

// Operation is a row-level operation reported in the change feed.
type Operation string

const (
	OperationInsert Operation = "INSERT"
	OperationUpdate Operation = "UPDATE"
	OperationDelete Operation = "DELETE"
)

// AllOperations contains every Operation. It is the default filter for change
// feed subscriptions.
var AllOperations = []Operation{OperationInsert, OperationUpdate, OperationDelete}

// TableChangeEvent is published for each row that was inserted, updated or
// deleted in a table.
type TableChangeEvent struct {
	// Table is the name of the changed table.
	Table string `json:"table"`
	// Operation is the performed Operation.
	Operation Operation `json:"operation"`
	// RowID identifies the affected row.
	RowID string `json:"row_id"`
	// At is the time the change was committed.
	At time.Time `json:"at"`
}
