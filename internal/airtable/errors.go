package airtable

import (
	"errors"
	"fmt"
	"strings"
)

// Kind классифицирует ошибки обращения к удалённым таблицам.
type Kind string

const (
	KindConfig     Kind = "config"
	KindAuth       Kind = "auth"
	KindPermission Kind = "permission"
	KindNotFound   Kind = "not_found"
	KindAPI        Kind = "api"
	KindTransport  Kind = "transport"
)

// Error - ошибка клиента. Status заполняется для ответов API.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Table   string
	Err     error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindConfig:
		return fmt.Sprintf("missing Airtable configuration: %s", e.Message)
	case KindAuth:
		return "authentication failed (401): check the Airtable API key, a valid personal access token is required"
	case KindPermission:
		return "access denied (403): the API key lacks permission for this table"
	case KindNotFound:
		return fmt.Sprintf("table not found (404): check that table %q exists in the base", e.Table)
	case KindTransport:
		return fmt.Sprintf("connection error: cannot reach Airtable: %v", e.Err)
	case KindAPI:
		return fmt.Sprintf("Airtable API error (%d): %s", e.Status, e.Message)
	default:
		return e.Message
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf возвращает вид ошибки клиента или пустую строку для прочих ошибок.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func NewConfigError(missing []string) *Error {
	return &Error{Kind: KindConfig, Message: strings.Join(missing, ", ")}
}

func newTransportError(err error) *Error {
	return &Error{Kind: KindTransport, Err: err}
}

func newStatusError(status int, table, message string) *Error {
	e := &Error{Status: status, Table: table, Message: message}
	switch status {
	case 401:
		e.Kind = KindAuth
	case 403:
		e.Kind = KindPermission
	case 404:
		e.Kind = KindNotFound
	default:
		e.Kind = KindAPI
	}
	return e
}
