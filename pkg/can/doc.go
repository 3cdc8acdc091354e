// Package can provides CAN frames, the node addressing scheme and the
// driver abstraction the transport runs on.
package can

// ISO-TP-like addressing, 11-bit standard identifier:
//
//	| 10     | 9       | 8        | 7..4      | 3..0    |
//	| rsrvd  | is_dest | is_isotp | source ID | dest ID |
//
// Plain (non ISO-TP) messages use a raw configured address as the
// identifier, sent as an extended (29-bit) identifier.
