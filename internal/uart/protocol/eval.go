package protocol

// evalControl is sent before an eval line so the Espruino interpreter
// executes it without echoing it back into the response stream.
const evalControl = 0x10

// EvalCommand frames an expression so the remote interpreter evaluates it and
// prints the JSON-serialized result on the UART notify characteristic.
func EvalCommand(expr string) []byte {
	cmd := make([]byte, 0, len(expr)+len("Bluetooth.print(JSON.stringify())\n")+1)
	cmd = append(cmd, evalControl)
	cmd = append(cmd, "Bluetooth.print(JSON.stringify("...)
	cmd = append(cmd, expr...)
	cmd = append(cmd, "))\n"...)
	return cmd
}
