package moderation

// DomainError carries a stable machine code next to the human message. The
// code feeds handler summaries and the HTTP error payloads, so it must stay
// short and lowercase.
type DomainError struct {
	code    string
	message string
}

func (e *DomainError) Error() string { return e.message }

// Code reports the stable error code.
func (e *DomainError) Code() string { return e.code }

// Validation failures: the request itself is malformed or incomplete.
var (
	ErrInvalidUserID  = &DomainError{code: "invalid_user_id", message: "user id must not be empty"}
	ErrInvalidSource  = &DomainError{code: "invalid_source", message: "unknown contact source"}
	ErrTooFewContacts = &DomainError{code: "too_few_contacts", message: "not enough distinct contacts"}
)

// Authorization and state failures.
var (
	ErrForbidden   = &DomainError{code: "forbidden", message: "operator privileges required"}
	ErrUserUnknown = &DomainError{code: "user_unknown", message: "no record for this user"}
	ErrNotPending  = &DomainError{code: "not_pending", message: "user has not submitted contacts for review"}
	ErrNotApproved = &DomainError{code: "not_approved", message: "user is not approved for publication"}
	ErrNoContacts  = &DomainError{code: "no_contacts", message: "user has no stored contacts"}
)
