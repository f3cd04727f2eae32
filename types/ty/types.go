package ty

import (
	"context"
	"sync"
	"time"
)

type Result[T any] struct {
	Ok  T
	Err error
}

// ShutdownContext carries the process-lifetime context and the WaitGroup
// the server waits on before exiting.
type ShutdownContext struct {
	Background       context.Context
	WaitGroup        *sync.WaitGroup
	ShutdownDuration time.Duration
}

// Run executes f on a background goroutine scoped to the shutdown window.
// Used for fire-and-forget work like receipt inserts after a response is sent.
func (s ShutdownContext) Run(f func(ctx context.Context)) {
	s.WaitGroup.Add(1)
	go func() {
		ctx, cancel := context.WithTimeout(s.Background, s.ShutdownDuration)
		defer func() {
			cancel()
			s.WaitGroup.Done()
		}()
		f(ctx)
	}()
}
