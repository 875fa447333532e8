package domain

// StartStatus is the coarse outcome of a session start request.
type StartStatus string

const (
	// StatusInitiated means a new transport was constructed and registered.
	StatusInitiated StartStatus = "initiated"

	// StatusAlreadyConnected means a handle already existed; nothing changed.
	StatusAlreadyConnected StartStatus = "already_connected"
)

// String returns the wire representation of the status.
func (s StartStatus) String() string {
	return string(s)
}
