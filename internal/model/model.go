// Package model defines domain entities used by services and repositories.
package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// MaxCoordinateX is the inclusive upper bound for Coordinates.X.
const MaxCoordinateX = 608

// MaxPoint bounds MinimalPoint and PersonalQualitiesMinimum to the INTEGER column range.
const MaxPoint = math.MaxInt32

// Difficulty grades a lab work. A nil *Difficulty on a record means "not set".
type Difficulty string

const (
	DifficultyEasy     Difficulty = "EASY"
	DifficultyNormal   Difficulty = "NORMAL"
	DifficultyTerrible Difficulty = "TERRIBLE"
)

// Valid reports whether d is one of the known grades.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyNormal, DifficultyTerrible:
		return true
	}
	return false
}

// Rank orders difficulties EASY < NORMAL < TERRIBLE.
func (d Difficulty) Rank() int {
	switch d {
	case DifficultyNormal:
		return 1
	case DifficultyTerrible:
		return 2
	default:
		return 0
	}
}

// DifficultyPtr is a helper for literals.
func DifficultyPtr(d Difficulty) *Difficulty { return &d }

// Coordinates of a lab work.
type Coordinates struct {
	X int64   `json:"x"`
	Y float64 `json:"y"`
}

// Discipline a lab work belongs to.
type Discipline struct {
	Name           string `json:"name"`
	SelfStudyHours int64  `json:"selfStudyHours"`
}

// LabWork is a single collection record. ID, Owner and CreationDate never change after insert.
type LabWork struct {
	ID                       int64         `json:"id"`
	Name                     string        `json:"name"`
	Coordinates              Coordinates   `json:"coordinates"`
	CreationDate             LocalDateTime `json:"creationDate"`
	MinimalPoint             int           `json:"minimalPoint"`
	PersonalQualitiesMinimum int           `json:"personalQualitiesMinimum"`
	Difficulty               *Difficulty   `json:"difficulty"`
	Discipline               Discipline    `json:"discipline"`
	Owner                    string        `json:"owner"`
}

// DifficultyRank returns the rank of the record's difficulty; unset ranks as EASY.
func (lw *LabWork) DifficultyRank() int {
	if lw.Difficulty == nil {
		return DifficultyEasy.Rank()
	}
	return lw.Difficulty.Rank()
}

// Clone returns a deep copy.
func (lw *LabWork) Clone() *LabWork {
	c := *lw
	if lw.Difficulty != nil {
		d := *lw.Difficulty
		c.Difficulty = &d
	}
	return &c
}

// Validate checks the field constraints of a record. ID and Owner are checked separately
// by callers because clients may omit the owner.
func (lw *LabWork) Validate() error {
	var problems []error
	if lw.ID <= 0 {
		problems = append(problems, errors.New("id must be positive"))
	}
	if lw.Name == "" {
		problems = append(problems, errors.New("name must not be empty"))
	}
	if lw.Coordinates.X > MaxCoordinateX {
		problems = append(problems, fmt.Errorf("coordinates.x must be <= %d", MaxCoordinateX))
	}
	if lw.MinimalPoint <= 0 || lw.MinimalPoint > MaxPoint {
		problems = append(problems, fmt.Errorf("minimalPoint must be in 1..%d", MaxPoint))
	}
	if lw.PersonalQualitiesMinimum <= 0 || lw.PersonalQualitiesMinimum > MaxPoint {
		problems = append(problems, fmt.Errorf("personalQualitiesMinimum must be in 1..%d", MaxPoint))
	}
	if lw.Difficulty != nil && !lw.Difficulty.Valid() {
		problems = append(problems, fmt.Errorf("unknown difficulty %q", string(*lw.Difficulty)))
	}
	if lw.Discipline.Name == "" {
		problems = append(problems, errors.New("discipline.name must not be empty"))
	}
	if lw.Discipline.SelfStudyHours < 1 {
		problems = append(problems, errors.New("discipline.selfStudyHours must be >= 1"))
	}
	return errors.Join(problems...)
}

// DecodeLabWork decodes a record payload without validating field values.
// Unknown fields are rejected.
func DecodeLabWork(data []byte) (*LabWork, error) {
	var lw LabWork
	if err := decodeStrict(data, &lw); err != nil {
		return nil, err
	}
	return &lw, nil
}

// ParseLabWork decodes and validates a record payload.
func ParseLabWork(data []byte) (*LabWork, error) {
	lw, err := DecodeLabWork(data)
	if err != nil {
		return nil, err
	}
	if err := lw.Validate(); err != nil {
		return nil, err
	}
	return lw, nil
}

// MarshalLabWork renders the wire form of a record.
func MarshalLabWork(lw *LabWork) (string, error) {
	b, err := json.Marshal(lw)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// User represents an account stored on the server. The client digest is never stored as-is.
type User struct {
	Username  string // unique
	PwdHash   []byte // Argon2id(client digest, SaltAuth)
	SaltAuth  []byte // per-user auth salt
	CreatedAt time.Time
}

// Credentials is the register/login payload. PasswordHash is the client-side digest.
type Credentials struct {
	Username     string `json:"username"`
	PasswordHash string `json:"passwordHash"`
}

// ParseCredentials decodes a credential payload; both fields are required.
func ParseCredentials(data []byte) (*Credentials, error) {
	var c Credentials
	if err := decodeStrict(data, &c); err != nil {
		return nil, err
	}
	if c.Username == "" || c.PasswordHash == "" {
		return nil, errors.New("empty username/passwordHash")
	}
	return &c, nil
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after payload")
	}
	return nil
}
