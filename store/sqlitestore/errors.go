package sqlitestore

import "fmt"

type (
	ReadOnly struct{}

	SchemaMismatch struct {
		Table  string
		Reason string
	}
)

func (ReadOnly) Error() string {
	return "store was opened as read-only"
}

func (s SchemaMismatch) Error() string {
	return fmt.Sprintf("table %v does not match the expected schema: %v", s.Table, s.Reason)
}
