package scorm

import "fmt"

// ErrorCode is a SCORM 1.2 runtime error code, as returned by GetLastError.
type ErrorCode string

const (
	ErrCodeNone               ErrorCode = "0"
	ErrCodeGeneral            ErrorCode = "101"
	ErrCodeInvalidArgument    ErrorCode = "201"
	ErrCodeCannotHaveChildren ErrorCode = "202"
	ErrCodeNotAnArray         ErrorCode = "203"
	ErrCodeNotInitialized     ErrorCode = "301"
	ErrCodeNotImplemented     ErrorCode = "401"
	ErrCodeInvalidSetValue    ErrorCode = "402"
	ErrCodeReadOnly           ErrorCode = "403"
	ErrCodeWriteOnly          ErrorCode = "404"
	ErrCodeIncorrectDataType  ErrorCode = "405"
)

const unknownErrorString = "Unknown error"

var errorStrings = map[ErrorCode]string{
	ErrCodeNone:               "No error",
	ErrCodeGeneral:            "General exception",
	ErrCodeInvalidArgument:    "Invalid argument error",
	ErrCodeCannotHaveChildren: "Element cannot have children",
	ErrCodeNotAnArray:         "Element not an array - cannot have count",
	ErrCodeNotInitialized:     "Not initialized",
	ErrCodeNotImplemented:     "Not implemented error",
	ErrCodeInvalidSetValue:    "Invalid set value, element is a keyword",
	ErrCodeReadOnly:           "Element is read only",
	ErrCodeWriteOnly:          "Element is write only",
	ErrCodeIncorrectDataType:  "Incorrect data type",
}

// ErrorString maps a known code to its text, "Unknown error" otherwise.
func ErrorString(code string) string {
	if s, ok := errorStrings[ErrorCode(code)]; ok {
		return s
	}
	return unknownErrorString
}

// protocolError records why a call failed; detail ends up in GetDiagnostic.
type protocolError struct {
	code   ErrorCode
	detail string
}

func newProtocolError(code ErrorCode, format string, args ...interface{}) *protocolError {
	return &protocolError{code: code, detail: fmt.Sprintf(format, args...)}
}

func (e *protocolError) Error() string {
	return string(e.code) + ": " + e.detail
}
