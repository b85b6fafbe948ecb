// Package circuit expresses the message validity predicate as a gnark
// arithmetic circuit over BN254 and provides a Groth16 backend for it.
//
// The circuit has constant structure: both the admin and the non-admin
// verdicts are always computed and the admin flag only selects between
// them.
package circuit

import (
	"github.com/consensys/gnark/frontend"

	"github.com/zkbatch/zkbatch/message"
)

// MessageCircuit proves that private message details satisfy the validity
// predicate. MessageNumber is the only public input.
type MessageCircuit struct {
	MessageNumber frontend.Variable `gnark:",public"`

	AgentID        frontend.Variable
	AgentXLocation frontend.Variable
	AgentYLocation frontend.Variable
	CheckSum       frontend.Variable
}

// Define implements frontend.Circuit.
func (c *MessageCircuit) Define(api frontend.API) error {
	// Binds the public input to the proof and range-checks it to uint64.
	api.ToBinary(c.MessageNumber, 64)

	bits := make([]frontend.Variable, message.NumChecks)
	bits[message.IDCheck] = leq(api, c.AgentID, message.MaxAgentID)
	bits[message.XCheck] = leq(api, c.AgentXLocation, message.MaxXLocation)
	bits[message.YCheck] = api.And(
		leq(api, message.MinYLocation, c.AgentYLocation),
		leq(api, c.AgentYLocation, message.MaxYLocation),
	)
	bits[message.XYCheck] = lt(api, c.AgentXLocation, c.AgentYLocation)
	bits[message.CheckSumCheck] = api.IsZero(api.Sub(
		c.CheckSum,
		api.Add(c.AgentID, c.AgentXLocation, c.AgentYLocation),
	))

	vector := api.FromBinary(bits...)
	nonAdmin := api.IsZero(api.Sub(vector, uint64(message.AllChecksPass)))
	isAdmin := api.IsZero(c.AgentID)

	api.AssertIsEqual(api.Select(isAdmin, 1, nonAdmin), 1)
	return nil
}

// leq returns 1 when a <= b, else 0.
func leq(api frontend.API, a, b frontend.Variable) frontend.Variable {
	return api.Sub(1, api.IsZero(api.Sub(api.Cmp(a, b), 1)))
}

// lt returns 1 when a < b, else 0.
func lt(api frontend.API, a, b frontend.Variable) frontend.Variable {
	return api.IsZero(api.Add(api.Cmp(a, b), 1))
}

// Assign builds a full witness assignment for one message.
func Assign(number uint64, d message.MessageDetails) *MessageCircuit {
	return &MessageCircuit{
		MessageNumber:  number,
		AgentID:        d.AgentID,
		AgentXLocation: d.AgentXLocation,
		AgentYLocation: d.AgentYLocation,
		CheckSum:       d.CheckSum,
	}
}

// publicAssignment sets only the public input, for verification.
func publicAssignment(number uint64) *MessageCircuit {
	return &MessageCircuit{MessageNumber: number}
}
