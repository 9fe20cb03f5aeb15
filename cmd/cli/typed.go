// cmd/cli/typed.go
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	cc "github.com/and161185/labkeeper/internal/crypto/clientcrypto"
	"github.com/and161185/labkeeper/internal/model"
	"github.com/and161185/labkeeper/internal/protocol"
)

// ------- generic builders -------

type credentials struct {
	username string
	arg      protocol.Argument
}

// parseCredentials reads -u/-p; the password leaves the process only as its digest.
func parseCredentials(cmd string, args []string) (credentials, error) {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	user := fs.String("u", "", "username")
	pass := fs.String("p", "", "password")
	if err := fs.Parse(args); err != nil {
		return credentials{}, err
	}
	if *user == "" || *pass == "" {
		return credentials{}, errors.New("need -u and -p")
	}
	b, err := json.Marshal(model.Credentials{Username: *user, PasswordHash: cc.HashPassword(*pass)})
	if err != nil {
		return credentials{}, err
	}
	return credentials{username: *user, arg: protocol.PayloadArg("user", protocol.TypeUser, b)}, nil
}

// buildArgs turns command-line flags into the arguments a shape declares.
func buildArgs(cmd string, shape protocol.CommandType, args []string) ([]protocol.Argument, error) {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var id *int64
	if shape == protocol.SingleArg || shape == protocol.ArgAndLabWork {
		id = fs.Int64("id", 0, "record id")
	}
	var lab func() (*model.LabWork, error)
	if shape == protocol.LabWorkArg || shape == protocol.ArgAndLabWork {
		lab = labWorkFlags(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("%s: unexpected arguments %v", cmd, fs.Args())
	}

	var out []protocol.Argument
	if id != nil {
		if *id == 0 {
			return nil, fmt.Errorf("%s: need -id", cmd)
		}
		out = append(out, protocol.StringArg("id", strconv.FormatInt(*id, 10)))
	}
	if lab != nil {
		lw, err := lab()
		if err != nil {
			return nil, err
		}
		if id != nil {
			lw.ID = *id
		}
		if err := lw.Validate(); err != nil {
			return nil, err
		}
		s, err := model.MarshalLabWork(lw)
		if err != nil {
			return nil, err
		}
		out = append(out, protocol.PayloadArg("labWork", protocol.TypeLabWork, []byte(s)))
	}
	return out, nil
}

// labWorkFlags registers the record flags on fs and returns the builder to call after Parse.
func labWorkFlags(fs *flag.FlagSet) func() (*model.LabWork, error) {
	file := fs.String("file", "", "record JSON file ('-' for stdin)")
	labID := fs.Int64("lab-id", 0, "record id (random when omitted)")
	name := fs.String("name", "", "name")
	x := fs.Int64("x", 0, "coordinate x (<= 608)")
	y := fs.Float64("y", 0, "coordinate y")
	minimal := fs.Int("min", 0, "minimal point (> 0)")
	pqm := fs.Int("pqm", 0, "personal qualities minimum (> 0)")
	difficulty := fs.String("difficulty", "", "EASY|NORMAL|TERRIBLE (optional)")
	discipline := fs.String("discipline", "", "discipline name")
	hours := fs.Int64("hours", 0, "discipline self-study hours (>= 1)")

	return func() (*model.LabWork, error) {
		var lw *model.LabWork
		if *file != "" {
			b, err := readAll(*file)
			if err != nil {
				return nil, err
			}
			if lw, err = model.DecodeLabWork(b); err != nil {
				return nil, fmt.Errorf("decode %s: %w", *file, err)
			}
		} else {
			lw = &model.LabWork{
				ID:                       *labID,
				Name:                     *name,
				Coordinates:              model.Coordinates{X: *x, Y: *y},
				MinimalPoint:             *minimal,
				PersonalQualitiesMinimum: *pqm,
				Discipline:               model.Discipline{Name: *discipline, SelfStudyHours: *hours},
			}
			if *difficulty != "" {
				lw.Difficulty = model.DifficultyPtr(model.Difficulty(strings.ToUpper(*difficulty)))
			}
		}
		if lw.ID == 0 {
			id, err := cc.NewRecordID()
			if err != nil {
				return nil, err
			}
			lw.ID = id
		}
		if lw.CreationDate.IsZero() {
			lw.CreationDate = model.Now()
		}
		return lw, nil
	}
}

// prettyLine indents a JSON line and leaves anything else as is.
func prettyLine(s string) string {
	var out any
	if json.Unmarshal([]byte(s), &out) == nil {
		if _, ok := out.(map[string]any); ok {
			j, _ := json.MarshalIndent(out, "", "  ")
			return string(j)
		}
	}
	return s
}
