package errors

import "fmt"

// NewResourceNotFoundError returns a new ErrNotFound error with the given
// message.
func NewResourceNotFoundError(message string, details Details) error {
	return Error{
		Code:    ErrNotFound,
		Message: message,
		Details: details,
	}
}

// NewBadRequestErr creates an ErrBadRequest error with the given message and
// original error.
func NewBadRequestErr(message string, err error, details Details) error {
	return Error{
		Code:    ErrBadRequest,
		Err:     err,
		Message: message,
		Details: details,
	}
}

// NewUnauthorizedError creates an ErrUnauthorized error. Details are never
// added as they might leak whether an account exists.
func NewUnauthorizedError(message string) error {
	return Error{
		Code:    ErrUnauthorized,
		Message: message,
	}
}

// NewForbiddenError creates an ErrForbidden error.
func NewForbiddenError(message string, details Details) error {
	return Error{
		Code:    ErrForbidden,
		Message: message,
		Details: details,
	}
}

// NewInternalError creates an ErrInternal error with the given message.
func NewInternalError(message string, details Details) error {
	return Error{
		Code:    ErrInternal,
		Message: message,
		Details: details,
	}
}

// NewInternalErrorFromErr creates an ErrInternal error with the original error.
func NewInternalErrorFromErr(err error, message string, details Details) error {
	return Error{
		Code:    ErrInternal,
		Err:     err,
		Message: message,
		Details: details,
	}
}

// NewQueryToSQLError is used when building a query with goqu failed.
func NewQueryToSQLError(err error, details Details) error {
	return Error{
		Code:    ErrInternal,
		Err:     err,
		Message: "query to sql",
		Details: details,
	}
}

// NewExecQueryError is used when executing a database query failed. The query
// is added to the details.
func NewExecQueryError(err error, message string, query string) error {
	return Error{
		Code:    ErrInternal,
		Err:     err,
		Message: message,
		Details: Details{"query": query},
	}
}

// NewScanDBRowError is used when scanning a database row failed.
func NewScanDBRowError(err error, message string, query string) error {
	return Error{
		Code:    ErrInternal,
		Err:     err,
		Message: message,
		Details: Details{"query": query},
	}
}

// NewDBTxBeginError is used when a database transaction could not be started.
func NewDBTxBeginError(err error) error {
	return Error{
		Code:    ErrInternal,
		Err:     err,
		Message: "begin tx",
	}
}

// NewDBTxCommitError is used when committing a database transaction failed.
func NewDBTxCommitError(err error) error {
	return Error{
		Code:    ErrInternal,
		Err:     err,
		Message: "commit tx",
	}
}

// NewMalformedIDError is used when a passed id is not in uuid.UUID format.
func NewMalformedIDError(id string, err error) error {
	return Error{
		Code:    ErrBadRequest,
		Err:     err,
		Message: fmt.Sprintf("malformed id: %s", id),
		Details: Details{"id": id},
	}
}
