package provider

import "errors"

var ErrProviderNotSupported = errors.New("provider is not supported")

type Registry struct {
	gateways map[string]Gateway
	primary  string
}

// NewRegistry indexes gateways by code. The first gateway is the default.
func NewRegistry(gateways ...Gateway) *Registry {
	items := make(map[string]Gateway, len(gateways))
	primary := ""
	for _, g := range gateways {
		if primary == "" {
			primary = g.Code()
		}
		items[g.Code()] = g
	}
	return &Registry{gateways: items, primary: primary}
}

func (r *Registry) Get(code string) (Gateway, error) {
	if code == "" {
		code = r.primary
	}
	gateway, ok := r.gateways[code]
	if !ok {
		return nil, ErrProviderNotSupported
	}
	return gateway, nil
}

func (r *Registry) Default() (Gateway, error) {
	return r.Get("")
}
