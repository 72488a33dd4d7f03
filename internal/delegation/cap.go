package delegation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrMalformedCap is returned for stored caps that are neither {"all":true}
// nor a list of codes.
var ErrMalformedCap = errors.New("delegation: malformed cap")

// AllMarker is the request value asking for an unrestricted cap.
const AllMarker = "all"

// Cap is the ceiling on what a user may delegate: unrestricted or an explicit
// list of codes. The zero value is an empty list.
type Cap struct {
	unrestricted bool
	codes        map[string]struct{}
}

// UnrestrictedCap returns a cap allowing every code the holder has.
func UnrestrictedCap() Cap {
	return Cap{unrestricted: true}
}

// CodesCap returns a finite cap.
func CodesCap(codes ...string) Cap {
	c := Cap{codes: make(map[string]struct{}, len(codes))}
	for _, code := range codes {
		c.codes[code] = struct{}{}
	}
	return c
}

// IsUnrestricted reports whether the cap is the unrestricted marker.
func (c Cap) IsUnrestricted() bool {
	return c.unrestricted
}

// Allows reports whether the cap permits delegating the code.
func (c Cap) Allows(code string) bool {
	if c.unrestricted {
		return true
	}
	_, ok := c.codes[code]
	return ok
}

// Codes returns the finite list in lexical order; nil when unrestricted.
func (c Cap) Codes() []string {
	if c.unrestricted {
		return nil
	}
	codes := make([]string, 0, len(c.codes))
	for code := range c.codes {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// MarshalJSON stores {"all":true} or the code list.
func (c Cap) MarshalJSON() ([]byte, error) {
	if c.unrestricted {
		return []byte(`{"all":true}`), nil
	}
	return json.Marshal(c.Codes())
}

// ParseCap decodes a stored cap document.
func ParseCap(data []byte) (Cap, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Cap{}, fmt.Errorf("%w: empty", ErrMalformedCap)
	}

	switch trimmed[0] {
	case '{':
		var marker struct {
			All bool `json:"all"`
		}
		if err := json.Unmarshal(trimmed, &marker); err != nil || !marker.All {
			return Cap{}, fmt.Errorf("%w: expected {\"all\":true}", ErrMalformedCap)
		}
		return UnrestrictedCap(), nil
	case '[':
		var codes []string
		if err := json.Unmarshal(trimmed, &codes); err != nil {
			return Cap{}, fmt.Errorf("%w: %v", ErrMalformedCap, err)
		}
		return CodesCap(codes...), nil
	default:
		return Cap{}, fmt.Errorf("%w: unexpected document", ErrMalformedCap)
	}
}

type requestKind uint8

const (
	requestInvalid requestKind = iota
	requestList
	requestAll
)

// CodeRequest is a requested permission grant as sent by a client: the
// marker "all", a list of codes or null (an empty list).
type CodeRequest struct {
	kind  requestKind
	codes []string
}

// RequestCodes builds a list request.
func RequestCodes(codes ...string) CodeRequest {
	return CodeRequest{kind: requestList, codes: append([]string{}, codes...)}
}

// RequestAll builds the unrestricted marker request.
func RequestAll() CodeRequest {
	return CodeRequest{kind: requestAll}
}

// IsAll reports whether the request is the unrestricted marker.
func (r CodeRequest) IsAll() bool { return r.kind == requestAll }

// IsList reports whether the request carries a list of codes.
func (r CodeRequest) IsList() bool { return r.kind == requestList }

// Codes returns the requested codes, deduplicated in request order.
func (r CodeRequest) Codes() []string {
	seen := make(map[string]struct{}, len(r.codes))
	out := make([]string, 0, len(r.codes))
	for _, code := range r.codes {
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out
}

// UnmarshalJSON records any unexpected shape as an invalid request instead of
// failing decoding, so the validator can reject it with a delegation error.
func (r *CodeRequest) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case bytes.Equal(trimmed, []byte("null")):
		*r = RequestCodes()
	case len(trimmed) > 0 && trimmed[0] == '"':
		var marker string
		if err := json.Unmarshal(trimmed, &marker); err == nil && marker == AllMarker {
			*r = RequestAll()
			return nil
		}
		*r = CodeRequest{}
	case len(trimmed) > 0 && trimmed[0] == '[':
		var codes []string
		if err := json.Unmarshal(trimmed, &codes); err != nil {
			*r = CodeRequest{}
			return nil
		}
		*r = RequestCodes(codes...)
	default:
		*r = CodeRequest{}
	}
	return nil
}
