package pxlower

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedType: total width outside {32,64,128,256} or a field
	// width the requested operation has no strategy for.
	ErrUnsupportedType = errors.New("unsupported type")
	// ErrUnsupportedOperation: no strategy handles the operation for a
	// recognised type.
	ErrUnsupportedOperation = errors.New("unsupported operation")
	// ErrMalformedRequest: operand count or shape does not match the
	// operation.
	ErrMalformedRequest = errors.New("malformed request")
	// ErrUnknownFeature: a feature list names something Features does
	// not model.
	ErrUnknownFeature = errors.New("unknown feature")
)

func unsupportedTypef(op Opcode, t Type, format string, args ...any) error {
	return fmt.Errorf("%w: %s %s: %s", ErrUnsupportedType, op, t, fmt.Sprintf(format, args...))
}

func unsupportedOpf(op Opcode, t Type, format string, args ...any) error {
	return fmt.Errorf("%w: %s %s: %s", ErrUnsupportedOperation, op, t, fmt.Sprintf(format, args...))
}

func malformedf(op Opcode, t Type, format string, args ...any) error {
	return fmt.Errorf("%w: %s %s: %s", ErrMalformedRequest, op, t, fmt.Sprintf(format, args...))
}
