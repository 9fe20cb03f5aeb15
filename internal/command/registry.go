// Package command holds the immutable catalog of commands the server understands.
package command

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/and161185/labkeeper/internal/errs"
	"github.com/and161185/labkeeper/internal/model"
	"github.com/and161185/labkeeper/internal/protocol"
)

// AuthRequirement states whether a command needs a session token.
type AuthRequirement int

const (
	// AuthNone accepts requests with or without a token.
	AuthNone AuthRequirement = iota
	// AuthRequired needs a valid token.
	AuthRequired
	// AuthForbidden rejects requests that carry a valid token.
	AuthForbidden
)

func (a AuthRequirement) String() string {
	switch a {
	case AuthRequired:
		return "required"
	case AuthForbidden:
		return "forbidden"
	default:
		return "none"
	}
}

// Input is what the dispatcher has extracted and validated for a handler.
// Only the fields relevant to the command's shape are set.
type Input struct {
	Owner       string
	Token       string
	Peer        string
	ID          int64
	LabWork     *model.LabWork
	Credentials *model.Credentials
}

// Handler runs a command. The returned text becomes a successful response;
// an error becomes a failure response.
type Handler func(ctx context.Context, in Input) (string, error)

// Descriptor describes one command.
type Descriptor struct {
	Name        string
	Type        protocol.CommandType
	Auth        AuthRequirement
	Description string
	Handler     Handler
}

// Args returns the declared arguments of the descriptor's shape.
func (d Descriptor) Args() []protocol.Argument { return ArgsFor(d.Type) }

// ArgsFor returns the declared arguments of a shape, in wire order.
func ArgsFor(t protocol.CommandType) []protocol.Argument {
	switch t {
	case protocol.SingleArg:
		return []protocol.Argument{{Name: "id", Type: protocol.TypeString}}
	case protocol.LabWorkArg:
		return []protocol.Argument{{Name: "labWork", Type: protocol.TypeLabWork}}
	case protocol.ArgAndLabWork:
		return []protocol.Argument{{Name: "id", Type: protocol.TypeString}, {Name: "labWork", Type: protocol.TypeLabWork}}
	case protocol.UserRegistration, protocol.UserLogin:
		return []protocol.Argument{{Name: "user", Type: protocol.TypeUser}}
	default:
		return nil
	}
}

// Registry is safe for concurrent reads; it is never modified after NewRegistry.
type Registry struct {
	byName map[string]Descriptor
	names  []string
}

// NewRegistry validates descs and builds a registry keyed by lower-cased name.
func NewRegistry(descs ...Descriptor) (*Registry, error) {
	r := &Registry{byName: make(map[string]Descriptor, len(descs))}
	for _, d := range descs {
		key := normalize(d.Name)
		if key == "" {
			return nil, fmt.Errorf("command: empty name")
		}
		if _, dup := r.byName[key]; dup {
			return nil, fmt.Errorf("command %q registered twice", key)
		}
		if d.Handler == nil {
			return nil, fmt.Errorf("command %q has no handler", key)
		}
		switch d.Type {
		case protocol.NoArg, protocol.SingleArg, protocol.LabWorkArg, protocol.ArgAndLabWork,
			protocol.UserRegistration, protocol.UserLogin, protocol.UserLogout:
		default:
			return nil, fmt.Errorf("command %q has unknown shape %q", key, d.Type)
		}
		d.Name = key
		r.byName[key] = d
		r.names = append(r.names, key)
	}
	slices.Sort(r.names)
	return r, nil
}

// Lookup finds a descriptor by case-insensitive name.
func (r *Registry) Lookup(name string) (Descriptor, error) {
	d, ok := r.byName[normalize(name)]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", errs.ErrUnknownCommand, strings.TrimSpace(name))
	}
	return d, nil
}

// Catalog returns the public name to shape table sent to clients on connect.
func (r *Registry) Catalog() protocol.Catalog {
	c := make(protocol.Catalog, len(r.byName))
	for name, d := range r.byName {
		c[name] = d.Type
	}
	return c
}

// Names returns the command names in sorted order.
func (r *Registry) Names() []string { return slices.Clone(r.names) }

func normalize(name string) string { return strings.ToLower(strings.TrimSpace(name)) }
