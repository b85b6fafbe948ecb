package main

import (
	"fmt"
	"math/rand/v2"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zkbatch/zkbatch/message"
)

// loadMessages reads a YAML sequence of messages. Each entry has a number
// and a details mapping with agent_id, agent_x_location, agent_y_location
// and checksum.
func loadMessages(path string) ([]message.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}
	var msgs []message.Message
	if err := yaml.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("parse messages %s: %w", path, err)
	}
	return msgs, nil
}

// randomMessages returns n valid messages numbered 1..n in shuffled order,
// roughly one in ten from the admin.
func randomMessages(rng *rand.Rand, n int) []message.Message {
	msgs := make([]message.Message, n)
	for i := range msgs {
		msgs[i] = message.RandomMessage(rng, uint64(i+1), rng.IntN(10) == 0)
	}
	rng.Shuffle(n, func(i, j int) { msgs[i], msgs[j] = msgs[j], msgs[i] })
	return msgs
}

// selectMessages picks the batch from the options, falling back to the
// reference batch.
func selectMessages(opts options, rng *rand.Rand) ([]message.Message, string, error) {
	switch {
	case opts.messagesPath != "":
		msgs, err := loadMessages(opts.messagesPath)
		return msgs, opts.messagesPath, err
	case opts.random > 0:
		return randomMessages(rng, opts.random), "random", nil
	default:
		return message.ReferenceBatch(), "reference", nil
	}
}
