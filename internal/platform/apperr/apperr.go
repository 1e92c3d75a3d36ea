package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// ===== Error model =====
// 各featureパッケージで共通に使うエラー型。
// ハンドラ層で ToHTTPStatus / DTO に変換する。

type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeUnavailable     Code = "UNAVAILABLE"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeInternal        Code = "INTERNAL"
)

type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func ErrInvalid(msg string) *Error      { return &Error{Code: CodeInvalidArgument, Message: msg} }
func ErrNotFound(msg string) *Error     { return &Error{Code: CodeNotFound, Message: msg} }
func ErrConflict(msg string) *Error     { return &Error{Code: CodeConflict, Message: msg} }
func ErrUnavailable(msg string) *Error  { return &Error{Code: CodeUnavailable, Message: msg} }
func ErrInvalidState(msg string) *Error { return &Error{Code: CodeInvalidState, Message: msg} }
func ErrInternal(msg string) *Error     { return &Error{Code: CodeInternal, Message: msg} }

func ToHTTPStatus(err error) int {
	var ae *Error
	if errors.As(err, &ae) {
		switch ae.Code {
		case CodeInvalidArgument:
			return http.StatusBadRequest
		case CodeNotFound:
			return http.StatusNotFound
		case CodeConflict, CodeUnavailable, CodeInvalidState:
			return http.StatusConflict
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}

// IsCode reports whether err is an *Error carrying the given code.
func IsCode(err error, code Code) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Code == code
}

// ===== HTTP error body =====

type DTO struct {
	Error struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func Body(code Code, msg string) DTO {
	var d DTO
	d.Error.Code = code
	d.Error.Message = msg
	return d
}

func FromErr(err error) DTO {
	var ae *Error
	if errors.As(err, &ae) {
		return Body(ae.Code, ae.Message)
	}
	return Body(CodeInternal, err.Error())
}
