package model

// EventLog is the EVM log encoding of a vault event, hex encoded for storage.
type EventLog struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
}
