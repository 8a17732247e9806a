package auth

import (
	"fmt"
	"time"

	"github.com/crates-registry/core/internal/apperror"
	"github.com/crates-registry/core/registry"
)

const op = "auth"

// CheckLock rejects a locked account with the exact message shape the
// original implementation renders (account_lock(reason, until)): the
// expiry timestamp when one is set, "indefinite" otherwise.
func CheckLock(u *registry.User, now time.Time) error {
	if !u.Locked(now) {
		return nil
	}
	var detail string
	if u.AccountLockUntil == nil {
		detail = fmt.Sprintf("This account is indefinitely locked. Reason: %s", u.AccountLockReason)
	} else {
		detail = fmt.Sprintf("This account is locked until %s. Reason: %s", u.AccountLockUntil.UTC().Format(time.RFC3339), u.AccountLockReason)
	}
	return apperror.New(apperror.Authorization, op+".CheckLock", detail)
}
