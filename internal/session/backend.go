package session

// Backend bundles the requester with the endpoint layout it is called with.
type Backend struct {
	Requester
	Endpoints Endpoints
}

// NewBackend fills missing endpoint templates with the defaults.
func NewBackend(req Requester, endpoints Endpoints) Backend {
	return Backend{Requester: req, Endpoints: endpoints.WithDefaults()}
}
