package errors

import "errors"

var (
	ErrEvaluationFailed  = errors.New("permission evaluation failed")
	ErrEvaluationTimeout = errors.New("permission evaluation timed out")

	ErrRuleNotFound    = errors.New("firewall rule not found")
	ErrInvalidRuleData = errors.New("invalid firewall rule data")

	ErrDeviceNotFound      = errors.New("device not found")
	ErrDeviceCompromised   = errors.New("device is compromised")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionInactive     = errors.New("session is inactive")
	ErrInvalidSessionToken = errors.New("invalid session token")

	ErrKeyNotFound     = errors.New("encryption key not found")
	ErrActiveKeyExists = errors.New("an active key already exists: rotate instead")
	ErrNoActiveKey     = errors.New("no active encryption key")
	ErrKeyNotRotated   = errors.New("key is still active: rotate first")
	ErrKeyRetired      = errors.New("key is retired")
	ErrInvalidKeyData  = errors.New("invalid encryption key data")
	ErrMalformedCipher = errors.New("malformed ciphertext")

	ErrDatabaseOperation = errors.New("database operation failed")
	ErrInternalServer    = errors.New("internal server error")
	ErrUnauthorized      = errors.New("unauthorized")
)
