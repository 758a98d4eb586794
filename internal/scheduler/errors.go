package scheduler

import "fmt"

type panicError struct {
	job   string
	value interface{}
}

func (e panicError) Error() string {
	return fmt.Sprintf("job %s panicked: %v", e.job, e.value)
}
