package account

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	passwdPath = "/etc/passwd"
	groupPath  = "/etc/group"
)

// posixDirectory enumerates accounts from /etc/passwd and /etc/group.
type posixDirectory struct{}

func (posixDirectory) Supported() bool { return true }

// passwdEntry is one /etc/passwd line: name:x:uid:gid:gecos:home:shell.
type passwdEntry struct {
	name string
	gid  int
}

func readPasswd() ([]passwdEntry, error) {
	f, err := os.Open(passwdPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []passwdEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ":")
		if len(fields) < 4 {
			continue
		}
		gid, err := strconv.Atoi(fields[3])
		if err != nil {
			continue
		}
		entries = append(entries, passwdEntry{name: fields[0], gid: gid})
	}
	return entries, scanner.Err()
}

// groupEntry is one /etc/group line: name:x:gid:member,member,...
type groupEntry struct {
	gid     int
	members []string
}

func readGroups() ([]groupEntry, error) {
	f, err := os.Open(groupPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []groupEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ":")
		if len(fields) < 4 {
			continue
		}
		gid, err := strconv.Atoi(fields[2])
		if err != nil {
			continue
		}
		var members []string
		if fields[3] != "" {
			members = strings.Split(fields[3], ",")
		}
		entries = append(entries, groupEntry{gid: gid, members: members})
	}
	return entries, scanner.Err()
}

func isAllowedGID(gid int) bool {
	for _, allowed := range AllowedGroupIDs {
		if gid == allowed {
			return true
		}
	}
	return false
}

func (posixDirectory) ListAllowedAccounts() ([]string, error) {
	passwd, err := readPasswd()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", passwdPath, err)
	}
	groups, err := readGroups()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", groupPath, err)
	}

	var names []string
	for _, p := range passwd {
		if isAllowedGID(p.gid) {
			names = append(names, p.name)
		}
	}
	for _, g := range groups {
		if !isAllowedGID(g.gid) {
			continue
		}
		names = append(names, g.members...)
	}

	return dedupSorted(names), nil
}

func (d posixDirectory) EnsureAllowed(name string) (string, error) {
	if name == "" {
		def, err := defaultAccountName()
		if err != nil {
			return "", err
		}
		name = def
	}
	allowed, err := d.ListAllowedAccounts()
	if err != nil {
		return "", err
	}
	for _, a := range allowed {
		if a == name {
			return name, nil
		}
	}
	return "", &ValidationError{Field: "account", Msg: fmt.Sprintf("%q is not in an allow-listed group", name)}
}

// NewDirectory returns a POSIX-backed Directory when /etc/passwd is
// readable, otherwise a fallback directory restricted to the default
// account.
func NewDirectory() Directory {
	if _, err := os.Stat(passwdPath); err != nil {
		return fallbackDirectory{}
	}
	return posixDirectory{}
}
