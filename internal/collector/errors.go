package collector

import "errors"

// Error kinds returned by collectors. Callers match them with errors.Is.
var (
	ErrInvalidArguments = errors.New("invalid arguments")
	ErrProcessNotFound  = errors.New("process not found")
	ErrUnexpected       = errors.New("unexpected error")
)

// ErrorKind classifies an error returned by a collector or the monitor.
type ErrorKind int

const (
	Success ErrorKind = iota
	UnexpectedError
	ProcessNotFound
	InvalidArguments
)

// KindOf maps err to its ErrorKind. Errors that match no known kind are
// UnexpectedError.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, ErrProcessNotFound):
		return ProcessNotFound
	case errors.Is(err, ErrInvalidArguments):
		return InvalidArguments
	default:
		return UnexpectedError
	}
}

func (k ErrorKind) String() string {
	switch k {
	case Success:
		return "No error"
	case ProcessNotFound:
		return "Process not found"
	case InvalidArguments:
		return "Invalid arguments"
	case UnexpectedError:
		return "Unexpected error happened"
	default:
		return "Unknown error"
	}
}
