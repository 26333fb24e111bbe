package main

import (
	"errors"
)

type role int

const (
	// The extension publishes the state the browser needs on connect, so
	// its latest message is cached per channel and replayed.
	extension role = iota
	browser
)

var errUnknownRole = errors.New("unknown role")

func parseRole(s string) (role, error) {
	switch s {
	case "extension":
		return extension, nil
	case "browser", "website":
		// Older clients connect as "website".
		return browser, nil
	}
	return 0, errUnknownRole
}

func (r role) String() string {
	if r == extension {
		return "extension"
	}
	return "browser"
}

func (r role) counterpart() role {
	if r == extension {
		return browser
	}
	return extension
}

// caches reports whether messages from r are kept for replay.
func (r role) caches() bool {
	return r == extension
}

// replays reports whether r receives the cached message on connect.
func (r role) replays() bool {
	return r.counterpart().caches()
}
