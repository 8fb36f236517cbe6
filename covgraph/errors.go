package covgraph

import "github.com/pkg/errors"

// ErrSizeMismatch is returned when a loaded FM-index's structural checksum
// does not match the one recorded alongside a coverage graph at build time
// (spec error kind 2): the two files no longer describe the same PRG.
var ErrSizeMismatch = errors.New("fm-index checksum does not match coverage graph")

// VerifyChecksum compares a freshly computed FM-index checksum against the
// one recorded at build time, returning ErrSizeMismatch on disagreement.
func VerifyChecksum(stored, computed uint64) error {
	if stored != computed {
		return ErrSizeMismatch
	}
	return nil
}
