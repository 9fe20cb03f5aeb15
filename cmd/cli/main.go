// Command lk is a CLI client for the labkeeper collection server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/labkeeper/internal/client"
	"github.com/and161185/labkeeper/internal/protocol"
)

// ---- config/token store ----

type tokenFile struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "labkeeper")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "labkeeper")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tf tokenFile) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tf)
}

func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.Token == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid token (login required)")
	}
	return tf.Token, nil
}

func deleteToken() error {
	err := os.Remove(tokenPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// tokenExpiry reads exp from a token without verifying it; the server does that.
func tokenExpiry(tok string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return time.Now().Add(30 * time.Minute)
}

// ---- utils ----

func readAll(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(p)
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// printResponse writes a successful message to w, pretty-printing JSON lines.
func printResponse(w io.Writer, resp protocol.Response, pretty bool) {
	if resp.Message == "" {
		return
	}
	if !pretty {
		fmt.Fprintln(w, resp.Message)
		return
	}
	for _, line := range strings.Split(resp.Message, "\n") {
		fmt.Fprintln(w, prettyLine(line))
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `lk CLI
Usage:
  lk [-addr HOST:PORT] [-timeout D] [-pretty] <cmd> [args]

Commands:
  version
  commands                                      (server command catalog)
  register   -u <username> -p <password>
  login      -u <username> -p <password>        (saves token)
  logout                                        (deletes saved token)
  <name>                                        NO_ARG commands: help, info, show, clear, ...
  <name>     -id <id>                           SINGLE_ARG commands: remove_by_id
  <name>     [labwork flags]                    LABWORK_ARG commands: add, add_if_max
  <name>     -id <id> [labwork flags]           ARG_AND_LABWORK commands: update

Labwork flags:
  -file <json|->  or  -name -x -y -min -pqm [-difficulty EASY|NORMAL|TERRIBLE] -discipline -hours [-lab-id]
`)
	os.Exit(2)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main connects, reads the catalog and runs one command.
func main() {
	addr := flag.String("addr", "localhost:12345", "server addr")
	timeout := flag.Duration("timeout", 30*time.Second, "request timeout")
	pretty := flag.Bool("pretty", false, "pretty-print JSON records")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := strings.ToLower(flag.Arg(0))
	args := flag.Args()[1:]

	if cmd == "version" {
		fmt.Printf("lk %s (%s)\n", version, buildDate)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c, err := client.Dial(ctx, *addr)
	if err != nil {
		fail(err)
	}
	defer c.Close()

	if cmd == "commands" {
		printJSON(os.Stdout, sortedCatalog(c.Catalog()))
		return
	}

	resp, err := run(ctx, c, cmd, args)
	if err != nil {
		fail(err)
	}
	if !resp.Success {
		fmt.Fprintln(os.Stderr, resp.Message)
		os.Exit(1)
	}
	printResponse(os.Stdout, resp, *pretty)
}

// run executes one catalog command, handling the local side of login and logout.
func run(ctx context.Context, c *client.Client, cmd string, args []string) (protocol.Response, error) {
	shape, ok := c.Catalog()[cmd]
	if !ok {
		return protocol.Response{}, fmt.Errorf("unknown command %q (see `lk commands`)", cmd)
	}

	switch shape {
	case protocol.UserRegistration, protocol.UserLogin:
		creds, err := parseCredentials(cmd, args)
		if err != nil {
			return protocol.Response{}, err
		}
		resp, err := c.Call(ctx, cmd, "", creds.arg)
		if err != nil || shape != protocol.UserLogin {
			return resp, err
		}
		if tok, ok := client.TokenFromLogin(resp.Message); ok {
			tf := tokenFile{Token: tok, Username: creds.username, ExpiresAt: tokenExpiry(tok)}
			if err := saveToken(tf); err != nil {
				return resp, err
			}
			resp.Message = "logged in as " + creds.username
		}
		return resp, nil

	case protocol.UserLogout:
		tok, err := loadToken()
		if err != nil {
			_ = deleteToken()
			return protocol.OK("not logged in"), nil
		}
		resp, err := c.Call(ctx, cmd, tok)
		if derr := deleteToken(); derr != nil {
			return resp, derr
		}
		return resp, err

	default:
		reqArgs, err := buildArgs(cmd, shape, args)
		if err != nil {
			return protocol.Response{}, err
		}
		// a missing token is reported by the server for commands that need one
		tok, _ := loadToken()
		return c.Call(ctx, cmd, tok, reqArgs...)
	}
}

type catalogEntry struct {
	Name string               `json:"name"`
	Type protocol.CommandType `json:"type"`
}

func sortedCatalog(cat protocol.Catalog) []catalogEntry {
	out := make([]catalogEntry, 0, len(cat))
	for name, t := range cat {
		out = append(out, catalogEntry{Name: name, Type: t})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
