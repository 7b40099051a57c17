// Package codec implements the single-byte XOR obfuscation applied by the
// sensor node to numeric telemetry.
package codec

// Key is the XOR key shared with the device firmware.
const Key = 0xAA

// Decode reverses the device transform. It is its own inverse.
func Decode(cipher int) int {
	return cipher ^ Key
}

// Encode applies the device transform.
func Encode(plain int) int {
	return plain ^ Key
}
