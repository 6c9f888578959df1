package errors

import (
	"errors"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"reflect"
	"testing"
)

func TestCast(t *testing.T) {
	type args struct {
		err error
	}
	tests := []struct {
		name   string
		args   args
		want   Error
		wantOK bool
	}{
		{
			name: "with rich error",
			args: args{
				err: Error{
					Code:    ErrBadRequest,
					Err:     nil,
					Message: "this was a bad request",
				},
			},
			want: Error{
				Code:    ErrBadRequest,
				Err:     nil,
				Message: "this was a bad request",
			},
			wantOK: true,
		},
		{
			name: "with rich error and original error",
			args: args{
				err: Error{
					Code:    ErrBadRequest,
					Err:     errors.New("i am an error"),
					Message: "this was a bad request",
				},
			},
			want: Error{
				Code:    ErrBadRequest,
				Err:     errors.New("i am an error"),
				Message: "this was a bad request",
			},
			wantOK: true,
		},
		{
			name: "with nil error",
			args: args{
				err: nil,
			},
			want: Error{
				Code:    ErrUnexpected,
				Err:     nil,
				Message: "unknown operation",
				Details: make(Details),
			},
			wantOK: false,
		},
		{
			name: "with simple error",
			args: args{
				err: errors.New("i am an error"),
			},
			want: Error{
				Code:    ErrUnexpected,
				Err:     errors.New("i am an error"),
				Message: "unknown operation",
				Details: make(Details),
			},
			wantOK: false,
		},
		{
			name: "with rich error pointer",
			args: args{
				err: &Error{
					Code:    ErrUnauthorized,
					Message: "who are you",
				},
			},
			want: Error{
				Code:    ErrUnauthorized,
				Message: "who are you",
			},
			wantOK: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, ok := Cast(tt.args.err); !reflect.DeepEqual(got, tt.want) || ok != tt.wantOK {
				t.Errorf("Cast() = %v, %v, want %v, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestError_Error(t *testing.T) {
	type fields struct {
		Code    Code
		Err     error
		Message string
	}
	tests := []struct {
		name   string
		fields fields
		want   string
	}{
		{
			name: "example 0",
			fields: fields{
				Code:    ErrBadRequest,
				Err:     errors.New("hello world"),
				Message: "unknown operation",
			},
			want: "unknown operation: hello world",
		},
		{
			name: "example 1",
			fields: fields{
				Code:    ErrBadRequest,
				Err:     errors.New("hello world"),
				Message: "known operation",
			},
			want: "known operation: hello world",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Error{
				Code:    tt.fields.Code,
				Err:     tt.fields.Err,
				Message: tt.fields.Message,
			}
			if got := e.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFromErr(t *testing.T) {
	type args struct {
		message string
		code    Code
		err     error
	}
	tests := []struct {
		name string
		args args
		want error
	}{
		{
			name: "example 0",
			args: args{
				message: "i am the message",
				code:    ErrProtocolViolation,
				err:     errors.New("i am the error"),
			},
			want: errors.New("i am the message: i am the error"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := FromErr(tt.args.message, tt.args.code, tt.args.err, nil); err == nil || err.Error() != tt.want.Error() {
				t.Errorf("FromErr() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	type args struct {
		message string
		err     error
	}
	tests := []struct {
		name string
		args args
		want error
	}{
		{
			name: "with rich error",
			args: args{
				message: "i am the wrapper",
				err: &Error{
					Code:    ErrNotFound,
					Err:     errors.New("i am the error"),
					Message: "i am the original operation",
				},
			},
			want: errors.New("i am the wrapper: i am the original operation: i am the error"),
		},
		{
			name: "with simple error",
			args: args{
				message: "i am the wrapper",
				err:     errors.New("i am the error"),
			},
			want: errors.New("i am the wrapper: i am the error"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Wrap(tt.args.err, tt.args.message, nil); err == nil || err.Error() != tt.want.Error() {
				t.Errorf("Wrap() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBlameUser(t *testing.T) {
	type args struct {
		err error
	}
	tests := []struct {
		name string
		args args
		want bool
	}{
		{
			name: "not found",
			args: args{
				err: Error{Code: ErrNotFound},
			},
			want: true,
		},
		{
			name: "bad request",
			args: args{
				err: Error{Code: ErrBadRequest},
			},
			want: true,
		},
		{
			name: "protocol violation",
			args: args{
				err: Error{Code: ErrProtocolViolation},
			},
			want: true,
		},
		{
			name: "unauthorized",
			args: args{
				err: Error{Code: ErrUnauthorized},
			},
			want: true,
		},
		{
			name: "forbidden",
			args: args{
				err: Error{Code: ErrForbidden},
			},
			want: true,
		},
		{
			name: "internal",
			args: args{
				err: Error{Code: ErrInternal},
			},
			want: false,
		},
		{
			name: "communication",
			args: args{
				err: Error{Code: ErrCommunication},
			},
			want: false,
		},
		{
			name: "unexpected",
			args: args{
				err: errors.New("unknown error"),
			},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BlameUser(tt.args.err); got != tt.want {
				t.Errorf("BlameUser() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHasCode(t *testing.T) {
	assert.True(t, HasCode(NewResourceNotFoundError("meow", nil), ErrNotFound), "should match code")
	assert.False(t, HasCode(NewInternalError("meow", nil), ErrNotFound), "should not match other code")
	assert.False(t, HasCode(errors.New("meow"), ErrUnexpected), "should not match non-rich error")
}

func TestWrap_keepsCodeAndDetails(t *testing.T) {
	err := Wrap(NewBadRequestErr("parse clock", nil, Details{"value": "25:00"}), "new scheduled item",
		Details{"value": "item-1"})
	e, ok := Cast(err)
	assert.True(t, ok, "should be rich error")
	assert.Equal(t, ErrBadRequest, e.Code, "should keep code")
	assert.Equal(t, "new scheduled item: parse clock", e.Message, "should prefix message")
	assert.Equal(t, "item-1", e.Details["value"], "should overwrite detail")
	assert.Equal(t, "25:00", e.Details["_value"], "should keep original detail with prefix")
}

func TestLog(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantLevel zapcore.Level
	}{
		{
			name:      "user blamed",
			err:       NewBadRequestErr("bad", nil, Details{"a": 1}),
			wantLevel: zapcore.WarnLevel,
		},
		{
			name:      "internal",
			err:       NewInternalErrorFromErr(errors.New("sad life"), "internal", nil),
			wantLevel: zapcore.ErrorLevel,
		},
		{
			name:      "unexpected",
			err:       errors.New("unknown"),
			wantLevel: zapcore.ErrorLevel,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			Log(zap.New(core), tt.err)
			entries := logs.All()
			if assert.Len(t, entries, 1, "should log exactly once") {
				assert.Equal(t, tt.wantLevel, entries[0].Level, "should log with correct level")
				assert.Contains(t, entries[0].ContextMap(), "err_code", "should include error code")
			}
		})
	}
}
