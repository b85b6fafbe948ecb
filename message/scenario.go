package message

// ReferenceBatch is the demonstration batch: an admin message with
// out-of-range fields, a valid message, an invalid one, a second number 6,
// the highest number 10, and a duplicate of number 3. Aggregated, it yields
// 10 with message 7 dropped.
func ReferenceBatch() []Message {
	return []Message{
		{Number: 6, Details: MessageDetails{AgentID: 0, AgentXLocation: 1000, AgentYLocation: 500, CheckSum: 300}},
		{Number: 3, Details: MessageDetails{AgentID: 1200, AgentXLocation: 1300, AgentYLocation: 12700, CheckSum: 15200}},
		{Number: 7, Details: MessageDetails{AgentID: 800, AgentXLocation: 2200, AgentYLocation: 13000, CheckSum: 17000}},
		{Number: 6, Details: MessageDetails{AgentID: 800, AgentXLocation: 2200, AgentYLocation: 13000, CheckSum: 16000}},
		{Number: 10, Details: MessageDetails{AgentID: 2500, AgentXLocation: 100, AgentYLocation: 6000, CheckSum: 8600}},
		{Number: 3, Details: MessageDetails{AgentID: 1200, AgentXLocation: 1300, AgentYLocation: 12700, CheckSum: 15200}},
	}
}
