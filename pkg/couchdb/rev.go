package couchdb

import (
	"crypto/md5" //nolint:gosec // content-addressing, not an integrity boundary; see doc comment below
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Rev is the parsed form of a CouchDB-style revision token: a generation
// counter and a content hash. The wire form is "gen-hex", e.g.
// "3-6f3f9d8f1a2b3c4d5e6f7a8b9c0d1e2f".
//
// MD5 is used despite its cryptographic weakness for compatibility with
// CouchDB client expectations (fixed 32-hex-digit form); the hash is a
// civility check against accidental concurrent overwrite, not an
// adversarial integrity mechanism.
type Rev struct {
	Gen  uint32
	Hash [16]byte
}

// maxGen mirrors the spec's "generation must be ... ≤ 2^31" bound.
const maxGen = 1 << 31

// String renders the wire form "gen-hex".
func (r Rev) String() string {
	return fmt.Sprintf("%d-%s", r.Gen, hex.EncodeToString(r.Hash[:]))
}

// IsZero reports whether r is the unset revision (no prior write).
func (r Rev) IsZero() bool {
	return r.Gen == 0
}

// ParseRev splits s on the first '-'; the generation must be a positive
// decimal integer no greater than 2^31, and the hash must be exactly 32
// lowercase hex digits. Any other shape is a bad-request error.
func ParseRev(s string) (Rev, error) {
	idx := strings.IndexByte(s, '-')
	if idx <= 0 || idx == len(s)-1 {
		return Rev{}, newBadRequestError("malformed _rev %q", s)
	}
	genPart, hashPart := s[:idx], s[idx+1:]

	gen, err := strconv.ParseUint(genPart, 10, 64)
	if err != nil || gen == 0 || gen > maxGen {
		return Rev{}, newBadRequestError("malformed _rev %q: bad generation", s)
	}

	if len(hashPart) != 32 {
		return Rev{}, newBadRequestError("malformed _rev %q: bad hash length", s)
	}
	raw, err := hex.DecodeString(hashPart)
	if err != nil {
		return Rev{}, newBadRequestError("malformed _rev %q: not hex", s)
	}
	for _, c := range hashPart {
		if c >= 'A' && c <= 'F' {
			return Rev{}, newBadRequestError("malformed _rev %q: must be lowercase hex", s)
		}
	}

	var rev Rev
	rev.Gen = uint32(gen)
	copy(rev.Hash[:], raw)
	return rev, nil
}

// computeHash canonicalises body (minus _rev) and returns the MD5 of its
// UTF-8 bytes. Two writes that produce identical canonical bodies within
// the same generation yield the same hash.
func computeHash(body map[string]interface{}) ([16]byte, error) {
	canon, err := canonicalize(withoutRev(body))
	if err != nil {
		return [16]byte{}, err
	}
	return md5.Sum(canon), nil //nolint:gosec
}

// bumpRev yields the next revision for body, given the previous revision
// (the zero Rev on first write, which bumps to generation 1).
func bumpRev(prev Rev, body map[string]interface{}) (Rev, error) {
	hash, err := computeHash(body)
	if err != nil {
		return Rev{}, err
	}
	return Rev{Gen: prev.Gen + 1, Hash: hash}, nil
}
