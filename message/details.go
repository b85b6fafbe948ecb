// Package message defines agent status messages and the validity predicate
// applied to their private fields.
//
// A non-admin message is valid when all five checks hold:
//
//	AgentID        <= 3000
//	AgentXLocation <= 15000
//	5000 <= AgentYLocation <= 20000
//	AgentYLocation > AgentXLocation
//	CheckSum == AgentID + AgentXLocation + AgentYLocation
//
// AgentID 0 is reserved for the administrator and is valid unconditionally.
package message

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// Field bounds enforced by ValidateNonAdmin.
const (
	AdminID       uint64 = 0
	MaxAgentID    uint64 = 3000
	MaxXLocation  uint64 = 15000
	MinYLocation  uint64 = 5000
	MaxYLocation  uint64 = 20000
	NumChecks            = 5
	AllChecksPass        = ValidityVector(1<<NumChecks - 1) // 31
)

// ErrInvalidMessage is returned (wrapped) when a message fails the predicate.
var ErrInvalidMessage = errors.New("message: invalid message details")

// MessageDetails holds the private fields of one agent status message.
type MessageDetails struct {
	AgentID        uint64 `yaml:"agent_id" json:"agentId"`
	AgentXLocation uint64 `yaml:"agent_x_location" json:"agentXLocation"`
	AgentYLocation uint64 `yaml:"agent_y_location" json:"agentYLocation"`
	CheckSum       uint64 `yaml:"checksum" json:"checkSum"`
}

// Message pairs a sequence number with the details it covers.
type Message struct {
	Number  uint64         `yaml:"number" json:"messageNumber"`
	Details MessageDetails `yaml:"details" json:"messageDetails"`
}

// IsAdmin reports whether the message was sent by the administrator.
func (d MessageDetails) IsAdmin() bool { return d.AgentID == AdminID }

// ExpectedCheckSum returns AgentID + AgentXLocation + AgentYLocation. The
// sum is computed in 256 bits so it never wraps; ok is false when it does
// not fit in a uint64 (such a checksum can never match).
func (d MessageDetails) ExpectedCheckSum() (sum uint64, ok bool) {
	s := uint256.NewInt(d.AgentID)
	s.Add(s, uint256.NewInt(d.AgentXLocation))
	s.Add(s, uint256.NewInt(d.AgentYLocation))
	sum, overflow := s.Uint64WithOverflow()
	return sum, !overflow
}

// Check identifies one bit of a ValidityVector.
type Check uint8

const (
	IDCheck       Check = iota // AgentID <= 3000
	XCheck                     // AgentXLocation <= 15000
	YCheck                     // 5000 <= AgentYLocation <= 20000
	XYCheck                    // AgentYLocation > AgentXLocation
	CheckSumCheck              // CheckSum matches the field sum
)

var checkNames = [NumChecks]string{"id", "x", "y", "xy", "checksum"}

// String returns the short check name.
func (c Check) String() string {
	if int(c) < NumChecks {
		return checkNames[c]
	}
	return fmt.Sprintf("check(%d)", uint8(c))
}

// ValidityVector packs the five check results, bit i set when Check(i)
// passed. Bit order: id, x, y, xy, checksum.
type ValidityVector uint8

// Bit returns the result of check c.
func (v ValidityVector) Bit(c Check) bool { return v&(1<<c) != 0 }

// Valid reports whether every check passed (v == 31).
func (v ValidityVector) Valid() bool { return v == AllChecksPass }

// Failed lists the checks that did not pass, in bit order.
func (v ValidityVector) Failed() []Check {
	var out []Check
	for c := Check(0); c < NumChecks; c++ {
		if !v.Bit(c) {
			out = append(out, c)
		}
	}
	return out
}

// Bits unpacks the vector into NumChecks booleans, least significant first.
func (v ValidityVector) Bits() [NumChecks]bool {
	var out [NumChecks]bool
	for c := Check(0); c < NumChecks; c++ {
		out[c] = v.Bit(c)
	}
	return out
}

// String renders the vector as e.g. "31" or "30[id]".
func (v ValidityVector) String() string {
	failed := v.Failed()
	if len(failed) == 0 {
		return fmt.Sprintf("%d", uint8(v))
	}
	names := make([]string, len(failed))
	for i, c := range failed {
		names[i] = c.String()
	}
	return fmt.Sprintf("%d[%s]", uint8(v), strings.Join(names, ","))
}

// ValidateNonAdmin evaluates all five checks without short-circuiting and
// packs them. It never fails: callers decide what a non-31 result means.
func ValidateNonAdmin(d MessageDetails) ValidityVector {
	checks := [NumChecks]bool{
		IDCheck:       d.AgentID <= MaxAgentID,
		XCheck:        d.AgentXLocation <= MaxXLocation,
		YCheck:        d.AgentYLocation >= MinYLocation && d.AgentYLocation <= MaxYLocation,
		XYCheck:       d.AgentYLocation > d.AgentXLocation,
		CheckSumCheck: false,
	}
	if sum, ok := d.ExpectedCheckSum(); ok {
		checks[CheckSumCheck] = sum == d.CheckSum
	}

	var v ValidityVector
	for i, ok := range checks {
		if ok {
			v |= 1 << i
		}
	}
	return v
}

// InvalidMessageError reports which checks a rejected message failed.
type InvalidMessageError struct {
	Vector ValidityVector
}

func (e *InvalidMessageError) Error() string {
	return fmt.Sprintf("%v: validity vector %v", ErrInvalidMessage, e.Vector)
}

// Unwrap lets errors.Is match ErrInvalidMessage.
func (e *InvalidMessageError) Unwrap() error { return ErrInvalidMessage }

// Validate returns nil for admin messages and for non-admin messages whose
// validity vector is 31, and an *InvalidMessageError otherwise.
func Validate(d MessageDetails) error {
	if d.IsAdmin() {
		return nil
	}
	if v := ValidateNonAdmin(d); !v.Valid() {
		return &InvalidMessageError{Vector: v}
	}
	return nil
}
