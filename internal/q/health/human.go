package health

import "errors"

// HumanErr pairs a message for end users with a HealthErr for logs.
type HumanErr struct {
	HumanMessage string
	HealthErr
}

// NewHumanErr returns a HumanErr. humanMsg is what Error returns; msg and args are what LogErr logs.
func NewHumanErr(humanMsg string, msg string, args ...any) error {
	return &HumanErr{HumanMessage: humanMsg, HealthErr: HealthErr{Message: msg, attrs: args}}
}

// WrapHuman is NewHumanErr with a wrapped cause.
func WrapHuman(humanMsg string, msg string, cause error, args ...any) error {
	w := Wrap(msg, cause, args...).(*HealthErr)
	return &HumanErr{HumanMessage: humanMsg, HealthErr: *w}
}

// Error returns only the human message. The log-oriented text is e.HealthErr.Error().
func (e *HumanErr) Error() string {
	return e.HumanMessage
}

// HumanMessage returns the message of the first HumanErr in err's chain, or err.Error() if there is none.
func HumanMessage(err error) string {
	if err == nil {
		return ""
	}
	var h *HumanErr
	if errors.As(err, &h) {
		return h.HumanMessage
	}
	return err.Error()
}
