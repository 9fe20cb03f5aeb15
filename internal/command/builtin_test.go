package command

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/and161185/labkeeper/internal/errs"
	"github.com/and161185/labkeeper/internal/model"
	"github.com/and161185/labkeeper/internal/protocol"
	"github.com/and161185/labkeeper/internal/repository/memory"
	"github.com/and161185/labkeeper/internal/service"
	"github.com/and161185/labkeeper/internal/store"
)

type fakeAccounts struct {
	registerErr error
	loginErr    error
	lastIP      string
	loggedOut   string
}

func (f *fakeAccounts) Register(context.Context, string, string) error { return f.registerErr }
func (f *fakeAccounts) Login(_ context.Context, _, _, ip string) (string, time.Time, error) {
	f.lastIP = ip
	if f.loginErr != nil {
		return "", time.Time{}, f.loginErr
	}
	return "tok", time.Now().Add(time.Minute), nil
}
func (f *fakeAccounts) Logout(_ context.Context, token string) error {
	f.loggedOut = token
	return nil
}

func lab(id int64) *model.LabWork {
	return &model.LabWork{
		ID:                       id,
		Name:                     "lab",
		Coordinates:              model.Coordinates{X: 1, Y: 1},
		MinimalPoint:             int(id),
		PersonalQualitiesMinimum: 1,
		Discipline:               model.Discipline{Name: "d", SelfStudyHours: 1},
	}
}

func newBuiltin(t *testing.T) (*Registry, *fakeAccounts) {
	t.Helper()
	st := store.New(memory.NewLabWorks())
	require.NoError(t, st.Load(context.Background()))
	acc := &fakeAccounts{}
	r, err := NewBuiltin(acc, service.NewLabWorkService(st))
	require.NoError(t, err)
	return r, acc
}

func run(t *testing.T, r *Registry, name string, in Input) string {
	t.Helper()
	d, err := r.Lookup(name)
	require.NoError(t, err)
	out, err := d.Handler(context.Background(), in)
	require.NoError(t, err)
	return out
}

func TestBuiltin_Catalog(t *testing.T) {
	t.Parallel()
	r, _ := newBuiltin(t)
	c := r.Catalog()
	require.Len(t, c, 16)
	require.Equal(t, protocol.LabWorkArg, c["add"])
	require.Equal(t, protocol.ArgAndLabWork, c["update"])
	require.Equal(t, protocol.UserLogin, c["login"])
	require.Equal(t, protocol.UserLogout, c["logout"])

	d, _ := r.Lookup("login")
	require.Equal(t, AuthForbidden, d.Auth)
	d, _ = r.Lookup("help")
	require.Equal(t, AuthNone, d.Auth)
	d, _ = r.Lookup("show")
	require.Equal(t, AuthRequired, d.Auth)
}

func TestBuiltin_HelpListsEveryCommand(t *testing.T) {
	t.Parallel()
	r, _ := newBuiltin(t)
	out := run(t, r, "help", Input{})
	for _, n := range r.Names() {
		require.Contains(t, out, n+" : ")
	}
	require.Len(t, strings.Split(out, "\n"), 16)
}

func TestBuiltin_RecordCommands(t *testing.T) {
	t.Parallel()
	r, _ := newBuiltin(t)
	alice := Input{Owner: "alice"}

	require.Equal(t, "", run(t, r, "show", alice))

	in := alice
	in.LabWork = lab(5)
	require.Equal(t, MsgAdded, run(t, r, "add", in))
	require.Equal(t, MsgDuplicateID(5), run(t, r, "add", in))

	in.LabWork = lab(3)
	require.Equal(t, MsgNotMax, run(t, r, "add_if_max", in))
	in.LabWork = lab(7)
	require.Equal(t, MsgAdded, run(t, r, "add_if_max", in))

	show := run(t, r, "show", alice)
	lines := strings.Split(show, "\n")
	require.Len(t, lines, 2)
	first, err := model.ParseLabWork([]byte(lines[0]))
	require.NoError(t, err)
	require.Equal(t, int64(5), first.ID)
	require.Equal(t, "alice", first.Owner)

	require.Equal(t, "12", run(t, r, "sum_of_minimal_point", alice))
	require.Equal(t, "5\n7", run(t, r, "print_unique_minimal_point", alice))
	require.Contains(t, run(t, r, "min_by_difficulty", alice), `"id":5`)
	require.Contains(t, run(t, r, "info", Input{}), "Number of elements: 2")

	upd := Input{Owner: "bob", ID: 5, LabWork: lab(5)}
	require.Equal(t, MsgUpdateNotFound(5), run(t, r, "update", upd))
	upd.Owner = "alice"
	require.Equal(t, MsgUpdated(5), run(t, r, "update", upd))
	upd.ID = 99
	require.Equal(t, MsgUpdateNotFound(99), run(t, r, "update", upd))

	require.Equal(t, MsgRemoveNotFound, run(t, r, "remove_by_id", Input{Owner: "bob", ID: 5}))
	require.Equal(t, MsgFirstRemoved, run(t, r, "remove_first", alice))
	require.Contains(t, run(t, r, "remove_head", alice), `"id":7`)
	require.Equal(t, MsgNothingOwned, run(t, r, "remove_head", alice))
	require.Equal(t, MsgNothingOwned, run(t, r, "remove_first", alice))
	require.Equal(t, MsgEmpty, run(t, r, "min_by_difficulty", alice))
	require.Equal(t, MsgCleared, run(t, r, "clear", alice))
}

func TestBuiltin_AccountCommands(t *testing.T) {
	t.Parallel()
	r, acc := newBuiltin(t)
	creds := Input{Credentials: &model.Credentials{Username: "a", PasswordHash: "h"}, Peer: "10.0.0.1"}

	require.Equal(t, MsgRegistered, run(t, r, "register", creds))
	acc.registerErr = errs.ErrAlreadyExists
	require.Equal(t, MsgUsernameTaken, run(t, r, "register", creds))

	require.Equal(t, protocol.LoginSuccessPrefix+"tok", run(t, r, "login", creds))
	require.Equal(t, "10.0.0.1", acc.lastIP)
	acc.loginErr = errs.ErrUnauthorized
	require.Equal(t, MsgLoginFailed, run(t, r, "login", creds))
	acc.loginErr = errs.ErrRateLimited
	require.Equal(t, MsgLoginRateLimited, run(t, r, "login", creds))

	require.Equal(t, MsgLoggedOut, run(t, r, "logout", Input{Owner: "a", Token: "tok"}))
	require.Equal(t, "tok", acc.loggedOut)
}
