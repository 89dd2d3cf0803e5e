package ruleset

import "errors"

// ErrPatchMismatch reports that a patch applied cleanly but the resulting
// document does not hash to what the sender claimed. The write is rejected
// and authoritative state stays unchanged.
var ErrPatchMismatch = errors.New("patched document does not match claimed hash")
