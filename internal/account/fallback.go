package account

import "fmt"

// fallbackDirectory is used when no POSIX account database
// (/etc/passwd) is present. Only the resolved default account may
// run tasks.
type fallbackDirectory struct{}

func (fallbackDirectory) Supported() bool { return false }

func (fallbackDirectory) ListAllowedAccounts() ([]string, error) {
	name, err := defaultAccountName()
	if err != nil {
		return nil, err
	}
	return []string{name}, nil
}

func (fallbackDirectory) EnsureAllowed(name string) (string, error) {
	def, err := defaultAccountName()
	if err != nil {
		return "", err
	}
	if name == "" || name == def {
		return def, nil
	}
	return "", &ValidationError{Field: "account", Msg: fmt.Sprintf("no POSIX account database available; only %q may be used, got %q", def, name)}
}
