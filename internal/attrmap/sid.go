package attrmap

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// SIDToFilterValue converts a textual SID (e.g.
// "S-1-5-21-1936905831-823966427-12391542-23578") into the form used to
// search an Active Directory objectSid attribute, grounded on
// nslcd/common.c's sid2search: AD stores objectSid as a binary blob, so a
// textual SID must be escaped component-by-component into a `\XX` filter
// value rather than compared as a string.
func SIDToFilterValue(sid string) (string, error) {
	bin, err := sidToBinary(sid)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, c := range bin {
		fmt.Fprintf(&b, "\\%02x", c)
	}
	return b.String(), nil
}

func sidToBinary(sid string) ([]byte, error) {
	parts := strings.Split(sid, "-")
	if len(parts) < 3 || parts[0] != "S" {
		return nil, fmt.Errorf("attrmap: malformed SID %q", sid)
	}

	revision, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return nil, fmt.Errorf("attrmap: malformed SID revision in %q: %w", sid, err)
	}

	authority, err := strconv.ParseUint(parts[2], 10, 48)
	if err != nil {
		return nil, fmt.Errorf("attrmap: malformed SID authority in %q: %w", sid, err)
	}

	subAuthorities := parts[3:]

	buf := make([]byte, 8+4*len(subAuthorities))
	buf[0] = byte(revision)
	buf[1] = byte(len(subAuthorities))
	// identifier-authority is a 48-bit big-endian value
	for i := 0; i < 6; i++ {
		buf[2+i] = byte(authority >> uint(8*(5-i)))
	}

	for i, s := range subAuthorities {
		v, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("attrmap: malformed SID sub-authority in %q: %w", sid, err)
		}
		binary.LittleEndian.PutUint32(buf[8+4*i:], uint32(v))
	}

	return buf, nil
}

// BinarySIDToRID returns the last sub-authority (the RID) of a binary SID.
// No handler calls it, and Config.ADCompatible is not read anywhere. Grounded
// on nslcd/common.c's binsid2id.
func BinarySIDToRID(bin []byte) (uint32, error) {
	if len(bin) < 8 {
		return 0, fmt.Errorf("attrmap: SID too short")
	}

	subCount := int(bin[1])
	if len(bin) < 8+4*subCount || subCount == 0 {
		return 0, fmt.Errorf("attrmap: SID truncated")
	}

	last := 8 + 4*(subCount-1)
	return binary.LittleEndian.Uint32(bin[last : last+4]), nil
}
