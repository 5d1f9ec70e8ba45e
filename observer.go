package gateway

import "github.com/google/uuid"

// Observer identifies one registration of a callback on a channel.
// Two observers are equal only if they came from the same NewObserver call.
// The zero Observer is never returned by NewObserver.
type Observer struct {
	id uuid.UUID
}

// NewObserver returns a fresh observer handle.
func NewObserver() Observer {
	return Observer{id: uuid.New()}
}

// IsZero reports whether o is the zero handle.
func (o Observer) IsZero() bool {
	return o.id == uuid.Nil
}

func (o Observer) String() string {
	if o.IsZero() {
		return ""
	}
	return o.id.String()
}
