package services

import "context"

// Starter is implemented by long running parts of the application. The
// returned channel is closed or signalled once the component has stopped.
type Starter interface {
	Start(ctx context.Context) (done chan struct{}, err error)
}
