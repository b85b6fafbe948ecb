package message

import "math/rand/v2"

// RandomValidDetails returns details that pass every non-admin check.
// AgentYLocation is drawn from [max(x+1, 5000), 20000] so both the y-range
// and the y>x checks hold.
func RandomValidDetails(rng *rand.Rand) MessageDetails {
	id := between(rng, 0, MaxAgentID)
	x := between(rng, 0, MaxXLocation)
	y := between(rng, max(x+1, MinYLocation), MaxYLocation)
	return MessageDetails{
		AgentID:        id,
		AgentXLocation: x,
		AgentYLocation: y,
		CheckSum:       id + x + y,
	}
}

// RandomMessage returns a valid message with the given sequence number.
// When fromAdmin is set the agent id is the admin id.
func RandomMessage(rng *rand.Rand, number uint64, fromAdmin bool) Message {
	d := RandomValidDetails(rng)
	if fromAdmin {
		d.CheckSum -= d.AgentID
		d.AgentID = AdminID
	}
	return Message{Number: number, Details: d}
}

// between returns a uniform value in [lo, hi].
func between(rng *rand.Rand, lo, hi uint64) uint64 {
	return lo + rng.Uint64N(hi-lo+1)
}
