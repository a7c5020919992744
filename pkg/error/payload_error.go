package error

import (
	"fmt"
	"net/http"
)

// MalformedPayloadError marks a webhook item that cannot be normalized. It is
// logged and skipped, never returned to the gateway.
type MalformedPayloadError struct {
	MessageID string
	Reason    string
}

func (err *MalformedPayloadError) Error() string {
	if err.MessageID == "" {
		return "malformed payload: " + err.Reason
	}
	return fmt.Sprintf("malformed payload (message %s): %s", err.MessageID, err.Reason)
}

func (err *MalformedPayloadError) ErrCode() string {
	return "MALFORMED_PAYLOAD"
}

func (err *MalformedPayloadError) StatusCode() int {
	return http.StatusBadRequest
}

type PersistenceError struct {
	Op  string
	Err error
}

func (err *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error during %s: %v", err.Op, err.Err)
}

func (err *PersistenceError) Unwrap() error {
	return err.Err
}

func (err *PersistenceError) ErrCode() string {
	return "PERSISTENCE_ERROR"
}

func (err *PersistenceError) StatusCode() int {
	return http.StatusInternalServerError
}
