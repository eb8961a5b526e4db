// Package serialization handles message type registration and envelope
// encoding for the sagamate framework.
//
// Messages cross the transport boundary as opaque JSON payloads tagged with a
// type name. The TypeRegistry maps type names to message factories so that
// receiving services can reconstruct the concrete Go type, and the
// EnvelopeSerializer performs the wrapping and unwrapping.
package serialization
