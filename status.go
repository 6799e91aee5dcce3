package guard

// EnsureAccountUsable checks the account status flags recovery workflows
// care about, in fixed precedence: expired, then locked, then disabled.
// Password expiry is deliberately not checked here so a user with expired
// credentials can still reset them.
func EnsureAccountUsable(u *User) error {
	if u == nil {
		return ErrUserNotFound
	}
	if !u.NotExpired {
		return ErrUserExpired
	}
	if !u.NotLocked {
		return ErrUserLocked
	}
	if !u.Enabled {
		return ErrUserDisabled
	}
	return nil
}

// EnsureAuthenticatable extends EnsureAccountUsable with the credentials
// non-expired check used by the login path and the request gate.
func EnsureAuthenticatable(u *User) error {
	if err := EnsureAccountUsable(u); err != nil {
		return err
	}
	if !u.PasswordNotExpired {
		return ErrPasswordExpired
	}
	return nil
}
