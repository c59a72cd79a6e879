package model

import (
	"fmt"
	"strings"
)

// Role names accepted in configuration.
const (
	RoleAnonymous = "anonymous"
	RoleStudent   = "student"
	RoleTeacher   = "teacher"
)

// User is the identity playing a session. The set of implementations is closed:
// Anonymous, Student and Teacher.
type User interface {
	// UserID is the opaque identifier sent to the backend.
	UserID() string
	Role() string
	isUser()
}

// Anonymous is a player without an account, identified by a device id.
type Anonymous struct {
	DeviceID string
}

// Student is a signed-up learner.
type Student struct {
	ID   string
	Name string
	Age  int
}

// Teacher is a signed-up teacher who may also play.
type Teacher struct {
	ID   string
	Name string
}

func (a Anonymous) UserID() string { return a.DeviceID }
func (a Anonymous) Role() string   { return RoleAnonymous }
func (Anonymous) isUser()          {}

func (s Student) UserID() string { return s.ID }
func (s Student) Role() string   { return RoleStudent }
func (Student) isUser()          {}

func (t Teacher) UserID() string { return t.ID }
func (t Teacher) Role() string   { return RoleTeacher }
func (Teacher) isUser()          {}

// NewUser builds a user from configuration values. Anonymous users take deviceID.
func NewUser(role, id, name, deviceID string) (User, error) {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "", RoleAnonymous:
		if deviceID == "" {
			return nil, fmt.Errorf("anonymous user requires a device id")
		}
		return Anonymous{DeviceID: deviceID}, nil
	case RoleStudent:
		if id == "" {
			return nil, fmt.Errorf("student user requires a user id")
		}
		return Student{ID: id, Name: name}, nil
	case RoleTeacher:
		if id == "" {
			return nil, fmt.Errorf("teacher user requires a user id")
		}
		return Teacher{ID: id, Name: name}, nil
	default:
		return nil, fmt.Errorf("unknown role %q (expected anonymous, student or teacher)", role)
	}
}
