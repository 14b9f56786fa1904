// Package protocol holds the wire-level helpers for the Nordic UART byte
// stream: fixed-size chunking for outbound payloads and the Espruino eval
// command framing. Inbound data needs no counterpart; notifications are
// concatenated as they arrive.
package protocol

// DefaultChunkSize is the largest write issued to the UART write
// characteristic. 16 bytes stays under the default BLE ATT MTU write limit
// without MTU negotiation.
const DefaultChunkSize = 16

// Split slices payload into chunks of at most max bytes. Every chunk except
// possibly the last has exactly max bytes, and concatenating the chunks in
// order reconstitutes payload. Returns nil for an empty payload. The chunks
// alias payload's backing array.
func Split(payload []byte, max int) [][]byte {
	if len(payload) == 0 {
		return nil
	}
	if max <= 0 {
		max = DefaultChunkSize
	}

	chunks := make([][]byte, 0, (len(payload)+max-1)/max)
	for len(payload) > max {
		chunks = append(chunks, payload[:max])
		payload = payload[max:]
	}
	return append(chunks, payload)
}
