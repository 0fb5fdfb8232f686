package consensus

import (
	"fmt"

	"AINewsCrawler/internal/ports"
)

// ClientRegistry maps provider names from configuration to their
// completion clients.
type ClientRegistry struct {
	clients map[string]ports.CompletionClient
}

// NewClientRegistry builds an empty registry.
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{clients: map[string]ports.CompletionClient{}}
}

// Register adds or replaces a client under the given name.
func (r *ClientRegistry) Register(name string, client ports.CompletionClient) {
	if r.clients == nil {
		r.clients = map[string]ports.CompletionClient{}
	}
	r.clients[name] = client
}

// Resolve returns a client by name or an error if it is absent.
func (r *ClientRegistry) Resolve(name string) (ports.CompletionClient, error) {
	if client, ok := r.clients[name]; ok {
		return client, nil
	}
	return nil, fmt.Errorf("provider %s is not registered", name)
}
