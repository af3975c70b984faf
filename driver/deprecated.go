package driver

import (
	"errors"
	"fmt"
)

// ErrLogCommandRenamed is returned by the old command log entry point.
var ErrLogCommandRenamed = errors.New("Log.command() has been renamed to log()")

// DeprecatedCommandError is returned by the legacy custom command registration
// methods.
type DeprecatedCommandError struct {
	Method    string
	Name      string
	Signature string
}

func (e *DeprecatedCommandError) Error() string {
	return fmt.Sprintf("%s(...) has been removed, register the command with Commands.add(%s) "+
		"and use the prevSubject option instead of parent, child or dual commands", e.Method, e.Signature)
}

// PrivateCommandError is returned by registration methods reserved for
// internal use.
type PrivateCommandError struct {
	Method string
}

func (e *PrivateCommandError) Error() string {
	return fmt.Sprintf("%s is a private command interface and cannot be used", e.Method)
}

func deprecatedCommand(method, name string) error {
	if name == "" {
		name = "commandName"
	}

	var signature string
	switch method {
	case "addParentCommand":
		signature = fmt.Sprintf("'%s', function(){...}", name)
	case "addChildCommand":
		signature = fmt.Sprintf("'%s', { prevSubject: true }, function(){...}", name)
	case "addDualCommand":
		signature = fmt.Sprintf("'%s', { prevSubject: 'optional' }, function(){...}", name)
	}
	return &DeprecatedCommandError{Method: method, Name: name, Signature: signature}
}

// AddParentCommand always fails; commands are registered through Commands.add.
func (d *Driver) AddParentCommand(name string) error {
	return deprecatedCommand("addParentCommand", name)
}

// AddChildCommand always fails; commands are registered through Commands.add.
func (d *Driver) AddChildCommand(name string) error {
	return deprecatedCommand("addChildCommand", name)
}

// AddDualCommand always fails; commands are registered through Commands.add.
func (d *Driver) AddDualCommand(name string) error {
	return deprecatedCommand("addDualCommand", name)
}

// AddAssertionCommand is reserved for internal use.
func (d *Driver) AddAssertionCommand() error {
	return &PrivateCommandError{Method: "addAssertionCommand"}
}

// AddUtilityCommand is reserved for internal use.
func (d *Driver) AddUtilityCommand() error {
	return &PrivateCommandError{Method: "addUtilityCommand"}
}

// LogCommand is the removed command log entry point.
func (d *Driver) LogCommand() error {
	return ErrLogCommandRenamed
}
