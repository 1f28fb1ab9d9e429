package shared

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Error taxonomy shared across modules. Every failure is terminal for the
// current request; nothing in this codebase retries automatically.
var (
	// ErrNotFound indicates the referenced entity is absent.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed or missing input.
	ErrValidation = errors.New("validation failed")
	// ErrForbidden indicates the permission oracle denied the caller.
	ErrForbidden = errors.New("forbidden")
	// ErrDuplicate indicates a uniqueness constraint was violated (SKU, number).
	ErrDuplicate = errors.New("duplicate entry")
	// ErrInsufficientStock indicates a sale-type delta would drive stock negative.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrAlreadyReceived indicates a purchase order was already received or closed.
	ErrAlreadyReceived = errors.New("purchase order already received")
	// ErrInvalidCredentials indicates a failed authentication attempt.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint error.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// UserSafeMessage returns a message suitable for API consumers. Known domain
// errors pass through verbatim; anything else is masked as a generic failure.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrForbidden),
		errors.Is(err, ErrDuplicate),
		errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrAlreadyReceived):
		return err.Error()
	default:
		return "internal error, please try again later"
	}
}
