package auth

import "fmt"

type (
	InvalidInput struct {
		Reason string
	}

	InvalidCredential struct{}

	InvalidSession struct {
		cause error
	}
)

func (i InvalidInput) Error() string {
	return i.Reason
}

func (InvalidCredential) Error() string {
	return "invalid credentials"
}

func (i InvalidSession) Error() string {
	if i.cause == nil {
		return "invalid session"
	}
	return fmt.Sprintf("invalid session: %v", i.cause)
}

func (i InvalidSession) Unwrap() error {
	return i.cause
}
