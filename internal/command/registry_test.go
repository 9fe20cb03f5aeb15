package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/and161185/labkeeper/internal/errs"
	"github.com/and161185/labkeeper/internal/protocol"
)

func noop(context.Context, Input) (string, error) { return "", nil }

func TestRegistry_LookupCaseInsensitive(t *testing.T) {
	t.Parallel()
	r, err := NewRegistry(Descriptor{Name: "Remove_By_ID", Type: protocol.SingleArg, Auth: AuthRequired, Handler: noop})
	require.NoError(t, err)

	d, err := r.Lookup("  REMOVE_by_id ")
	require.NoError(t, err)
	require.Equal(t, "remove_by_id", d.Name)
	require.Equal(t, protocol.SingleArg, d.Type)
	require.Len(t, d.Args(), 1)

	_, err = r.Lookup("nope")
	require.ErrorIs(t, err, errs.ErrUnknownCommand)
}

func TestRegistry_RejectsBadDescriptors(t *testing.T) {
	t.Parallel()
	_, err := NewRegistry(
		Descriptor{Name: "a", Type: protocol.NoArg, Handler: noop},
		Descriptor{Name: "A", Type: protocol.NoArg, Handler: noop},
	)
	require.Error(t, err)

	_, err = NewRegistry(Descriptor{Name: "a", Type: "WEIRD", Handler: noop})
	require.Error(t, err)

	_, err = NewRegistry(Descriptor{Name: "a", Type: protocol.NoArg})
	require.Error(t, err)

	_, err = NewRegistry(Descriptor{Name: " ", Type: protocol.NoArg, Handler: noop})
	require.Error(t, err)
}

func TestArgsFor(t *testing.T) {
	t.Parallel()
	require.Empty(t, ArgsFor(protocol.NoArg))
	require.Empty(t, ArgsFor(protocol.UserLogout))
	args := ArgsFor(protocol.ArgAndLabWork)
	require.Equal(t, []string{protocol.TypeString, protocol.TypeLabWork}, []string{args[0].Type, args[1].Type})
	require.Equal(t, protocol.TypeUser, ArgsFor(protocol.UserLogin)[0].Type)
}
