package admission

import "errors"

// Admission failure classes. The message on each sentinel is the
// user-visible reason; the first failing check wins.
var (
	ErrInvalidTarget   = errors.New("the target URL is not valid")
	ErrAddressTaken    = errors.New("this address is already in use")
	ErrRateLimited     = errors.New("creation limit reached, please wait and try again")
	ErrMalwareDetected = errors.New("malware detected on the target URL")
	ErrActorBanned     = errors.New("account has been banned")
	ErrDomainNotOwned  = errors.New("you can not use this domain")
	ErrDomainBanned    = errors.New("the target URL points to a banned domain")
	ErrHostBanned      = errors.New("the target URL points to a banned host")
	ErrRegisteredOnly  = errors.New("only registered users can use this field")
	ErrInvalidPassword = errors.New("password length must be between 3 and 64")
	ErrInvalidCustom   = errors.New("the custom address is not valid")
	ErrInvalidExpiry   = errors.New("expiry is not valid, examples: 1m, 8h, 42d")
)

// IsUserError reports whether err belongs to the admission taxonomy and is
// safe to surface verbatim with a 4xx status.
func IsUserError(err error) bool {
	for _, sentinel := range []error{
		ErrInvalidTarget, ErrAddressTaken, ErrRateLimited, ErrMalwareDetected,
		ErrActorBanned, ErrDomainNotOwned, ErrDomainBanned, ErrHostBanned,
		ErrRegisteredOnly, ErrInvalidPassword, ErrInvalidCustom, ErrInvalidExpiry,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
