package orchestration

import (
	"context"
	"fmt"
	"reflect"
)

type workerRun func(context.Context) error

func panicSafeNamedWorker(name string, run func(context.Context) error) workerRun {
	return func(ctx context.Context) (err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("%s worker panicked: %v", name, recovered)
			}
		}()

		if err = run(ctx); err != nil {
			return fmt.Errorf("%s worker failed: %w", name, err)
		}

		return nil
	}
}

// withContextCancelHook calls onContextDone if ctx ends before the returned
// channel is closed.
func withContextCancelHook(ctx context.Context, onContextDone func()) chan struct{} {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			onContextDone()
		case <-done:
		}
	}()
	return done
}

// isNilCapability detects nil and typed-nil interface values so options do
// not store unusable wrappers as configured capabilities.
func isNilCapability(capability any) bool {
	if capability == nil {
		return true
	}

	v := reflect.ValueOf(capability)
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return v.IsNil()
	default:
		return false
	}
}
