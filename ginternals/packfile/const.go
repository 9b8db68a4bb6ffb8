package packfile

import (
	"errors"

	"gitgo/ginternals"
)

// list of file extensions
const (
	ExtPackfile = ".pack"
	ExtIndex    = ".idx"
)

// OidWalkFunc represents a method called for every oid found while
// walking a packfile
type OidWalkFunc func(oid ginternals.Oid) error

// OidWalkStop is a fake error used to tell WalkOids to stop
var OidWalkStop = errors.New("stop walking")
