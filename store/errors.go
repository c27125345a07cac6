package store

import "fmt"

type (
	NotFound struct {
		Kind string
		Key  interface{}
	}

	Conflict struct {
		Kind string
		Key  interface{}
	}
)

func (n NotFound) Error() string {
	return fmt.Sprintf("%v %v not found", n.Kind, n.Key)
}

func (c Conflict) Error() string {
	return fmt.Sprintf("%v %v already exists", c.Kind, c.Key)
}
