// Package dispatch turns one request frame into exactly one response.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/labkeeper/internal/command"
	"github.com/and161185/labkeeper/internal/errs"
	"github.com/and161185/labkeeper/internal/metrics"
	"github.com/and161185/labkeeper/internal/model"
	"github.com/and161185/labkeeper/internal/protocol"
)

// Failure texts that do not carry error details.
const (
	MsgInternal        = "Internal server error"
	MsgProcessing      = "Error processing command, please try again later"
	MsgTokenExpired    = "Unauthorized: token expired, please log in again"
	MsgUnauthorized    = "Unauthorized: please log in first"
	MsgAlreadyLoggedIn = "Already logged in, log out first"
)

// Verifier resolves a session token to a username.
type Verifier interface {
	Verify(token string) (string, error)
}

// Dispatcher validates requests against the registry and runs their handlers.
// It is safe for concurrent use.
type Dispatcher struct {
	reg    *command.Registry
	tokens Verifier
	log    *zap.Logger
}

// New constructs a Dispatcher.
func New(reg *command.Registry, tokens Verifier, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{reg: reg, tokens: tokens, log: log}
}

// Dispatch handles one frame. It never returns an error: every failure,
// including a handler panic, becomes a failure response.
func (d *Dispatcher) Dispatch(ctx context.Context, frame []byte) (resp protocol.Response) {
	start := time.Now()
	var name string

	defer func() {
		if r := recover(); r != nil {
			d.log.Error("panic",
				zap.Any("reason", r),
				zap.ByteString("stack", debug.Stack()),
				zap.String("command", name),
				zap.String("conn", ConnIDFromCtx(ctx)),
			)
			metrics.PanicRecovered()
			resp = protocol.Fail(MsgInternal)
		}

		outcome := metrics.OutcomeOK
		if !resp.Success {
			outcome = metrics.OutcomeError
		}
		dur := time.Since(start)
		metrics.ObserveCommand(name, outcome, dur)

		// metadata only, never payloads or tokens
		peer, _ := PeerFromCtx(ctx)
		d.log.Info("command",
			zap.String("command", name),
			zap.Bool("success", resp.Success),
			zap.Duration("dur", dur),
			zap.String("conn", ConnIDFromCtx(ctx)),
			zap.String("peer", peer),
		)
	}()

	msg, err := d.run(ctx, frame, &name)
	if err != nil {
		text, internal := failureMessage(err)
		if internal {
			d.log.Error("command failed",
				zap.String("command", name),
				zap.String("conn", ConnIDFromCtx(ctx)),
				zap.Error(err),
			)
		} else {
			d.log.Debug("command rejected", zap.String("command", name), zap.Error(err))
		}
		return protocol.Fail(text)
	}
	return protocol.OK(msg)
}

// run sets *name once the command is known so the deferred observers can label it.
func (d *Dispatcher) run(ctx context.Context, frame []byte, name *string) (string, error) {
	var req protocol.Request
	if err := json.Unmarshal(frame, &req); err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrMalformedRequest, err)
	}
	if strings.TrimSpace(req.CommandName) == "" {
		return "", fmt.Errorf("%w: missing commandName", errs.ErrMalformedRequest)
	}

	desc, err := d.reg.Lookup(req.CommandName)
	if err != nil {
		return "", err
	}
	*name = desc.Name

	in := command.Input{Token: req.BearerToken()}
	if addr, ok := PeerFromCtx(ctx); ok {
		in.Peer = peerHost(addr)
	}
	if in.Owner, err = d.authorize(desc.Auth, in.Token); err != nil {
		return "", err
	}
	if err := bind(desc, req.Arguments, &in); err != nil {
		return "", err
	}
	return desc.Handler(ctx, in)
}

func (d *Dispatcher) authorize(auth command.AuthRequirement, token string) (string, error) {
	switch auth {
	case command.AuthRequired:
		if token == "" {
			return "", fmt.Errorf("%w: missing token", errs.ErrUnauthorized)
		}
		user, err := d.tokens.Verify(token)
		if err != nil {
			return "", fmt.Errorf("%w: %w", errs.ErrUnauthorized, err)
		}
		return user, nil
	case command.AuthForbidden:
		// a stale or broken token is ignored so an expired session can log in again
		if token != "" {
			if _, err := d.tokens.Verify(token); err == nil {
				return "", errs.ErrAlreadyAuthenticated
			}
		}
		return "", nil
	default:
		if token != "" {
			if user, err := d.tokens.Verify(token); err == nil {
				return user, nil
			}
		}
		return "", nil
	}
}

// bind checks arguments against the declared shape and decodes them into in.
// Argument names are not compared; only count, type and presence matter.
func bind(desc command.Descriptor, got []protocol.Argument, in *command.Input) error {
	want := desc.Args()
	if len(got) != len(want) {
		return fmt.Errorf("%w: %s expects %d argument(s), got %d",
			errs.ErrBadArguments, desc.Name, len(want), len(got))
	}

	for i, w := range want {
		a := got[i]
		if !strings.EqualFold(strings.TrimSpace(a.Type), w.Type) {
			return fmt.Errorf("%w: argument %d must be %s, got %q", errs.ErrBadArguments, i+1, w.Type, a.Type)
		}
		if a.Value == nil {
			return fmt.Errorf("%w: argument %d has no value", errs.ErrBadArguments, i+1)
		}

		switch w.Type {
		case protocol.TypeString:
			id, err := strconv.ParseInt(strings.TrimSpace(*a.Value), 10, 64)
			if err != nil {
				return fmt.Errorf("%w: id %q is not an integer", errs.ErrBadArguments, *a.Value)
			}
			in.ID = id
		case protocol.TypeLabWork:
			lw, err := model.DecodeLabWork([]byte(*a.Value))
			if err != nil {
				return fmt.Errorf("%w: %v", errs.ErrBadPayload, err)
			}
			in.LabWork = lw
		case protocol.TypeUser:
			c, err := model.ParseCredentials([]byte(*a.Value))
			if err != nil {
				return fmt.Errorf("%w: %v", errs.ErrBadPayload, err)
			}
			in.Credentials = c
		}
	}

	if in.LabWork != nil {
		if desc.Type == protocol.ArgAndLabWork {
			in.LabWork.ID = in.ID
		}
		if err := in.LabWork.Validate(); err != nil {
			return fmt.Errorf("%w: %v", errs.ErrBadPayload, err)
		}
	}
	return nil
}

// failureMessage maps err to client text. internal is true for errors whose
// detail stays in the log.
func failureMessage(err error) (text string, internal bool) {
	switch {
	case errors.Is(err, errs.ErrTokenExpired):
		return MsgTokenExpired, false
	case errors.Is(err, errs.ErrUnauthorized):
		return MsgUnauthorized, false
	case errors.Is(err, errs.ErrAlreadyAuthenticated):
		return MsgAlreadyLoggedIn, false
	case errors.Is(err, errs.ErrMalformedRequest),
		errors.Is(err, errs.ErrUnknownCommand),
		errors.Is(err, errs.ErrBadArguments),
		errors.Is(err, errs.ErrBadPayload):
		return "Invalid request: " + err.Error(), false
	default:
		return MsgProcessing, true
	}
}
