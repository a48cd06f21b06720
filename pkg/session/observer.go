package session

// Observer receives holder lifecycle events. Implementations must be safe for
// concurrent use since one observer is usually shared by many holders.
type Observer interface {
	SessionAllocated(backend string)
	AllocationFailed(backend string, err error)
	SessionClosed(backend string, err error)
	// SessionLost reports an open session found closed by something other
	// than its holder.
	SessionLost(backend string)
	ResponseParsed(backend string, statusCode int, bodyBytes int)
}

type nopObserver struct{}

func (nopObserver) SessionAllocated(string)         {}
func (nopObserver) AllocationFailed(string, error)  {}
func (nopObserver) SessionClosed(string, error)     {}
func (nopObserver) SessionLost(string)              {}
func (nopObserver) ResponseParsed(string, int, int) {}

// Observers fans events out to every non-nil observer in order.
func Observers(obs ...Observer) Observer {
	var out multiObserver
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

type multiObserver []Observer

func (m multiObserver) SessionAllocated(backend string) {
	for _, o := range m {
		o.SessionAllocated(backend)
	}
}

func (m multiObserver) AllocationFailed(backend string, err error) {
	for _, o := range m {
		o.AllocationFailed(backend, err)
	}
}

func (m multiObserver) SessionClosed(backend string, err error) {
	for _, o := range m {
		o.SessionClosed(backend, err)
	}
}

func (m multiObserver) SessionLost(backend string) {
	for _, o := range m {
		o.SessionLost(backend)
	}
}

func (m multiObserver) ResponseParsed(backend string, statusCode int, bodyBytes int) {
	for _, o := range m {
		o.ResponseParsed(backend, statusCode, bodyBytes)
	}
}
