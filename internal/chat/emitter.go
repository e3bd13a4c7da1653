//go:generate go run go.uber.org/mock/mockgen -source=emitter.go -destination=mocks/mock_emitter.go -package=mocks

package chat

// Emitter is the outbound port the transport implements. Send delivers one
// envelope to one connection; Connections lists every live connection.
type Emitter interface {
	Send(connID string, env Envelope) error
	Connections() []string
}
