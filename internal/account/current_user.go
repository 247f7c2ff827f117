package account

import "os/user"

// currentUser returns the current process owner's username via the
// stdlib os/user package, which works on every supported platform.
func currentUser() (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", err
	}
	return u.Username, nil
}
