package cacheinfra

import (
	"context"
	"errors"
	"fmt"
	"reflect"
)

// ErrInvalidFetchFn is returned when a fetch function does not match func(context.Context) (T, error).
var ErrInvalidFetchFn = errors.New("cacheinfra: invalid fetch function")

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// ValidateFetchFn checks fetchFn has the signature func(context.Context) (T, error).
func ValidateFetchFn(fetchFn any) error {
	if fetchFn == nil {
		return fmt.Errorf("%w: cannot be nil", ErrInvalidFetchFn)
	}

	fnType := reflect.TypeOf(fetchFn)
	if fnType.Kind() != reflect.Func {
		return fmt.Errorf("%w: must be a function, got %s", ErrInvalidFetchFn, fnType)
	}

	if fnType.NumIn() != 1 || fnType.NumOut() != 2 {
		return fmt.Errorf("%w: must have signature func(context.Context) (T, error)", ErrInvalidFetchFn)
	}

	if !fnType.In(0).Implements(contextType) {
		return fmt.Errorf("%w: first parameter must be context.Context", ErrInvalidFetchFn)
	}

	if !fnType.Out(1).Implements(errorType) {
		return fmt.Errorf("%w: second return value must be error", ErrInvalidFetchFn)
	}

	return nil
}

// CallFetch invokes a validated fetch function and returns its result as any.
func CallFetch(ctx context.Context, fetchFn any) (any, error) {
	if fn, ok := fetchFn.(func(context.Context) (any, error)); ok {
		return fn(ctx)
	}

	results := reflect.ValueOf(fetchFn).Call([]reflect.Value{reflect.ValueOf(ctx)})

	var result any
	if v := results[0]; v.IsValid() && v.CanInterface() {
		result = v.Interface()
	}

	var err error
	if v := results[1]; v.IsValid() && !v.IsNil() {
		err = v.Interface().(error)
	}

	return result, err
}
