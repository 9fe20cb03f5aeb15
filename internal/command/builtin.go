package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/and161185/labkeeper/internal/errs"
	"github.com/and161185/labkeeper/internal/model"
	"github.com/and161185/labkeeper/internal/protocol"
	"github.com/and161185/labkeeper/internal/store"
)

// Response texts for business outcomes.
const (
	MsgAdded            = "Lab work added successfully."
	MsgCleared          = "Lab work collection cleared successfully."
	MsgNotMax           = "The element is not the maximum and was not added to the collection."
	MsgRemoved          = "Lab work removed successfully."
	MsgRemoveNotFound   = "No lab work found with the provided id that belongs to the current user."
	MsgFirstRemoved     = "First element removed successfully."
	MsgNothingOwned     = "You have no lab works in the collection."
	MsgEmpty            = "The collection is empty."
	MsgLoggedOut        = "Logged out successfully."
	MsgRegistered       = "Registration successful."
	MsgUsernameTaken    = "Registration failed: the username is already taken."
	MsgLoginFailed      = "Invalid username or password."
	MsgLoginRateLimited = "Too many failed login attempts, try again later."
)

// MsgUpdated is the update success text.
func MsgUpdated(id int64) string { return fmt.Sprintf("Lab work with ID: %d has been updated.", id) }

// MsgUpdateNotFound is returned for absent and foreign records alike.
func MsgUpdateNotFound(id int64) string { return fmt.Sprintf("No lab work found with ID: %d.", id) }

// MsgDuplicateID is returned when an add collides with an existing id.
func MsgDuplicateID(id int64) string {
	return fmt.Sprintf("A lab work with ID: %d already exists.", id)
}

// Accounts is the account service used by register, login and logout.
type Accounts interface {
	Register(ctx context.Context, username, passwordHash string) error
	Login(ctx context.Context, username, passwordHash, ip string) (string, time.Time, error)
	Logout(ctx context.Context, token string) error
}

// LabWorks is the collection service used by the record commands.
type LabWorks interface {
	Add(ctx context.Context, owner string, lw *model.LabWork) error
	AddIfMax(ctx context.Context, owner string, lw *model.LabWork) (bool, error)
	Update(ctx context.Context, owner string, id int64, lw *model.LabWork) (*model.LabWork, error)
	RemoveByID(ctx context.Context, owner string, id int64) error
	RemoveFirst(ctx context.Context, owner string) (*model.LabWork, error)
	RemoveHead(ctx context.Context, owner string) (*model.LabWork, error)
	Clear(ctx context.Context, owner string) (int, error)
	List() []*model.LabWork
	Info() store.Info
	SumMinimalPoint() int64
	UniqueMinimalPoints() []int
	MinByDifficulty() (*model.LabWork, bool)
}

type builtins struct {
	accounts Accounts
	labs     LabWorks
	reg      *Registry
}

// NewBuiltin returns the registry with every command the server supports.
func NewBuiltin(accounts Accounts, labs LabWorks) (*Registry, error) {
	b := &builtins{accounts: accounts, labs: labs}
	reg, err := NewRegistry(
		Descriptor{"help", protocol.NoArg, AuthNone, "print help for available commands", b.help},
		Descriptor{"info", protocol.NoArg, AuthNone, "print information about the collection (type, initialization date, number of items)", b.info},
		Descriptor{"show", protocol.NoArg, AuthRequired, "print all items of the collection, one JSON record per line", b.show},
		Descriptor{"add", protocol.LabWorkArg, AuthRequired, "add a new element to the collection", b.add},
		Descriptor{"update", protocol.ArgAndLabWork, AuthRequired, "update the element with the given id", b.update},
		Descriptor{"remove_by_id", protocol.SingleArg, AuthRequired, "remove your element with the given id", b.removeByID},
		Descriptor{"clear", protocol.NoArg, AuthRequired, "remove all of your elements", b.clear},
		Descriptor{"remove_first", protocol.NoArg, AuthRequired, "remove your element with the lowest id", b.removeFirst},
		Descriptor{"remove_head", protocol.NoArg, AuthRequired, "print and remove your element with the lowest id", b.removeHead},
		Descriptor{"add_if_max", protocol.LabWorkArg, AuthRequired, "add a new element if its id exceeds every id you own", b.addIfMax},
		Descriptor{"sum_of_minimal_point", protocol.NoArg, AuthRequired, "print the sum of minimalPoint over all elements", b.sumOfMinimalPoint},
		Descriptor{"min_by_difficulty", protocol.NoArg, AuthRequired, "print an element with the lowest difficulty", b.minByDifficulty},
		Descriptor{"print_unique_minimal_point", protocol.NoArg, AuthRequired, "print the distinct minimalPoint values", b.printUniqueMinimalPoint},
		Descriptor{"register", protocol.UserRegistration, AuthForbidden, "create an account", b.register},
		Descriptor{"login", protocol.UserLogin, AuthForbidden, "log in and receive a session token", b.login},
		Descriptor{"logout", protocol.UserLogout, AuthRequired, "end the session", b.logout},
	)
	if err != nil {
		return nil, err
	}
	b.reg = reg
	return reg, nil
}

func (b *builtins) help(context.Context, Input) (string, error) {
	names := b.reg.Names()
	lines := make([]string, 0, len(names))
	for _, n := range names {
		d, _ := b.reg.Lookup(n)
		lines = append(lines, n+" : "+d.Description)
	}
	return strings.Join(lines, "\n"), nil
}

func (b *builtins) info(context.Context, Input) (string, error) {
	i := b.labs.Info()
	return fmt.Sprintf("Collection type: %s\nInitialization date: %s\nNumber of elements: %d",
		i.Type, i.InitializedAt.Format(time.DateTime), i.Size), nil
}

func (b *builtins) show(context.Context, Input) (string, error) {
	return joinRecords(b.labs.List())
}

func (b *builtins) add(ctx context.Context, in Input) (string, error) {
	err := b.labs.Add(ctx, in.Owner, in.LabWork)
	switch {
	case errors.Is(err, errs.ErrDuplicateID):
		return MsgDuplicateID(in.LabWork.ID), nil
	case err != nil:
		return "", err
	}
	return MsgAdded, nil
}

func (b *builtins) update(ctx context.Context, in Input) (string, error) {
	_, err := b.labs.Update(ctx, in.Owner, in.ID, in.LabWork)
	switch {
	case errors.Is(err, errs.ErrNotFound), errors.Is(err, errs.ErrForbidden):
		return MsgUpdateNotFound(in.ID), nil
	case err != nil:
		return "", err
	}
	return MsgUpdated(in.ID), nil
}

func (b *builtins) removeByID(ctx context.Context, in Input) (string, error) {
	err := b.labs.RemoveByID(ctx, in.Owner, in.ID)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return MsgRemoveNotFound, nil
	case err != nil:
		return "", err
	}
	return MsgRemoved, nil
}

func (b *builtins) clear(ctx context.Context, in Input) (string, error) {
	if _, err := b.labs.Clear(ctx, in.Owner); err != nil {
		return "", err
	}
	return MsgCleared, nil
}

func (b *builtins) removeFirst(ctx context.Context, in Input) (string, error) {
	lw, err := b.labs.RemoveFirst(ctx, in.Owner)
	if err != nil {
		return "", err
	}
	if lw == nil {
		return MsgNothingOwned, nil
	}
	return MsgFirstRemoved, nil
}

func (b *builtins) removeHead(ctx context.Context, in Input) (string, error) {
	lw, err := b.labs.RemoveHead(ctx, in.Owner)
	if err != nil {
		return "", err
	}
	if lw == nil {
		return MsgNothingOwned, nil
	}
	return model.MarshalLabWork(lw)
}

func (b *builtins) addIfMax(ctx context.Context, in Input) (string, error) {
	added, err := b.labs.AddIfMax(ctx, in.Owner, in.LabWork)
	switch {
	case errors.Is(err, errs.ErrDuplicateID):
		return MsgDuplicateID(in.LabWork.ID), nil
	case err != nil:
		return "", err
	case !added:
		return MsgNotMax, nil
	}
	return MsgAdded, nil
}

func (b *builtins) sumOfMinimalPoint(context.Context, Input) (string, error) {
	return strconv.FormatInt(b.labs.SumMinimalPoint(), 10), nil
}

func (b *builtins) minByDifficulty(context.Context, Input) (string, error) {
	lw, ok := b.labs.MinByDifficulty()
	if !ok {
		return MsgEmpty, nil
	}
	return model.MarshalLabWork(lw)
}

func (b *builtins) printUniqueMinimalPoint(context.Context, Input) (string, error) {
	vals := b.labs.UniqueMinimalPoints()
	lines := make([]string, len(vals))
	for i, v := range vals {
		lines[i] = strconv.Itoa(v)
	}
	return strings.Join(lines, "\n"), nil
}

func (b *builtins) register(ctx context.Context, in Input) (string, error) {
	err := b.accounts.Register(ctx, in.Credentials.Username, in.Credentials.PasswordHash)
	switch {
	case errors.Is(err, errs.ErrAlreadyExists):
		return MsgUsernameTaken, nil
	case err != nil:
		return "", err
	}
	return MsgRegistered, nil
}

func (b *builtins) login(ctx context.Context, in Input) (string, error) {
	token, _, err := b.accounts.Login(ctx, in.Credentials.Username, in.Credentials.PasswordHash, in.Peer)
	switch {
	case errors.Is(err, errs.ErrUnauthorized):
		return MsgLoginFailed, nil
	case errors.Is(err, errs.ErrRateLimited):
		return MsgLoginRateLimited, nil
	case err != nil:
		return "", err
	}
	return protocol.LoginSuccessPrefix + token, nil
}

func (b *builtins) logout(ctx context.Context, in Input) (string, error) {
	if err := b.accounts.Logout(ctx, in.Token); err != nil {
		return "", err
	}
	return MsgLoggedOut, nil
}

func joinRecords(items []*model.LabWork) (string, error) {
	lines := make([]string, 0, len(items))
	for _, lw := range items {
		s, err := model.MarshalLabWork(lw)
		if err != nil {
			return "", err
		}
		lines = append(lines, s)
	}
	return strings.Join(lines, "\n"), nil
}
