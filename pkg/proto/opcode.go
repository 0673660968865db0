// Package proto implements the outer packet frame and the typed message
// bodies of the Rask wire protocol, per spec §4.2.
package proto

import "fmt"

// Opcode identifies a packet's body shape and the handler that applies it.
type Opcode byte

// Opcode table, spec §4.2.
const (
	OpVersion         Opcode = 0x80
	OpTenant          Opcode = 0x81
	OpTenantHash      Opcode = 0x82
	OpFileHash        Opcode = 0x83
	OpFileExists      Opcode = 0x90
	OpCreateDirectory Opcode = 0x91
	OpMoveOut         Opcode = 0x93
	OpFileDataBlock   Opcode = 0x9F
)

// SupportedVersion is the protocol version this build speaks in VERSION
// packets.
const SupportedVersion byte = 0x01

var opcodeNames = map[Opcode]string{
	OpVersion:         "VERSION",
	OpTenant:          "TENANT",
	OpTenantHash:      "TENANT-HASH",
	OpFileHash:        "FILE-HASH",
	OpFileExists:      "FILE-EXISTS",
	OpCreateDirectory: "CREATE-DIRECTORY",
	OpMoveOut:         "MOVE-OUT",
	OpFileDataBlock:   "FILE-DATA-BLOCK",
}

// String renders the opcode's protocol name, or a hex fallback for an
// opcode this build does not recognize (spec §4.2: unknown opcodes are
// logged and silently skipped, never treated as fatal).
func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", byte(o))
}

// Known reports whether o appears in the opcode table.
func (o Opcode) Known() bool {
	_, ok := opcodeNames[o]
	return ok
}
