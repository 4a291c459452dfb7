package access

import "errors"

// ErrInvalidAPIKey indicates a credential header was present but matched no
// stored digest.
var ErrInvalidAPIKey = errors.New("access: invalid api key")

// ErrDomainNotAllowed indicates the credential is not entitled to the
// requested domain.
var ErrDomainNotAllowed = errors.New("access: domain not allowed")
