package blog

import "fmt"

type (
	BadRequest struct {
		Reason string
	}

	Forbidden struct {
		PostID int64
		UserID int64
	}

	Unauthorized struct{}
)

func (b BadRequest) Error() string {
	return b.Reason
}

func (f Forbidden) Error() string {
	return fmt.Sprintf("user %v is not the author of post %v", f.UserID, f.PostID)
}

func (Unauthorized) Error() string {
	return "Unauthorized"
}
