package notify

import (
	"context"
	"errors"
)

// Multi fans an event out to every sink and joins their errors. One failing
// sink does not stop delivery to the others.
func Multi(sinks ...Sink) Sink {
	var live []Sink
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return SinkFunc(func(ctx context.Context, ev Event) error {
		var errs []error
		for _, s := range live {
			if err := s.Send(ctx, ev); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}
