package connectivity

import "fmt"

// ErrServiceNotFound is returned when Call targets a service with no route
// and no local handler.
type ErrServiceNotFound struct {
	Service string
}

func (e *ErrServiceNotFound) Error() string {
	return fmt.Sprintf("connectivity: service not routable: %s", e.Service)
}

// ErrNoFactory is returned by SetRoute when the protocol has no registered
// TransportFactory.
type ErrNoFactory struct {
	Service  string
	Protocol string
}

func (e *ErrNoFactory) Error() string {
	return fmt.Sprintf("connectivity: no transport factory for protocol %q (service %s)", e.Protocol, e.Service)
}

// ErrFactoryFailed is returned by SetRoute when a TransportFactory returns
// an error while building a handler for a route.
type ErrFactoryFailed struct {
	Service  string
	Protocol string
	Endpoint string
	Cause    error
}

func (e *ErrFactoryFailed) Error() string {
	return fmt.Sprintf("connectivity: factory %q failed for service %s (endpoint %s): %v",
		e.Protocol, e.Service, e.Endpoint, e.Cause)
}

func (e *ErrFactoryFailed) Unwrap() error { return e.Cause }
