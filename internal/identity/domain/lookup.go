package domain

import "context"

// Lookup resolves a username to a contact address. A missing user or an
// unreachable users service both report ok=false.
type Lookup interface {
	FindContactByUsername(ctx context.Context, username string) (email string, ok bool)
}
