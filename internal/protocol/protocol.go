// Package protocol defines the line-delimited JSON frames exchanged between
// clients and the server.
package protocol

import "strings"

// CommandType is the argument shape of a command. The set is closed.
type CommandType string

const (
	NoArg            CommandType = "NO_ARG"
	SingleArg        CommandType = "SINGLE_ARG"
	LabWorkArg       CommandType = "LABWORK_ARG"
	ArgAndLabWork    CommandType = "ARG_AND_LABWORK"
	UserRegistration CommandType = "USER_REGISTRATION"
	UserLogin        CommandType = "USER_LOGIN"
	UserLogout       CommandType = "USER_LOGOUT"
)

// Declared argument types.
const (
	TypeString  = "String"
	TypeLabWork = "LabWork"
	TypeUser    = "User"
)

// LoginSuccessPrefix starts the message of a successful login; the token follows it.
const LoginSuccessPrefix = "log in successful, your token is: "

// Argument is one command argument. Value carries scalars verbatim and payloads as JSON text.
type Argument struct {
	Name  string  `json:"name"`
	Type  string  `json:"type"`
	Value *string `json:"value"`
}

// Request is a client frame.
type Request struct {
	CommandName string     `json:"commandName"`
	Arguments   []Argument `json:"arguments"`
	Token       *string    `json:"token"`
}

// BearerToken returns the request token, or "" when absent.
func (r *Request) BearerToken() string {
	if r.Token == nil {
		return ""
	}
	return strings.TrimSpace(*r.Token)
}

// Response is a server frame. Exactly one is sent per request.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Catalog maps command names to their shapes. It is the first frame a client receives.
type Catalog map[string]CommandType

// OK builds a successful response.
func OK(msg string) Response { return Response{Success: true, Message: msg} }

// Fail builds a failure response.
func Fail(msg string) Response { return Response{Success: false, Message: msg} }

// StringArg builds a scalar argument.
func StringArg(name, value string) Argument {
	return Argument{Name: name, Type: TypeString, Value: &value}
}

// PayloadArg builds an argument carrying JSON text of the given type.
func PayloadArg(name, typ string, payload []byte) Argument {
	v := string(payload)
	return Argument{Name: name, Type: typ, Value: &v}
}
