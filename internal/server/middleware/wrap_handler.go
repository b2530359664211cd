package middleware

import (
	"fmt"
	"net/http"
	"reflect"
	"runtime"

	"github.com/labstack/echo/v4"
)

var (
	echoContextType = reflect.TypeOf((*echo.Context)(nil)).Elem()
	errorType       = reflect.TypeOf((*error)(nil)).Elem()
)

// WrapHandler adapts a typed handler to echo. Accepted shapes:
//
//	func(echo.Context, Req) (Res, error)
//	func(echo.Context, Req) error
//
// Req is a struct or a pointer to one; it is bound from the path, query,
// body, headers and token claims, then validated. A nil pointer or interface
// Res answers 204; a *Response result is sent as is.
func WrapHandler(f any) echo.HandlerFunc {
	handler, err := wrapHandler(f)
	if err != nil {
		panic(err)
	}
	return handler
}

type handlerSignature struct {
	name       string
	reqType    reflect.Type
	reqPointer bool
	hasResult  bool
}

func inspectHandler(fVal reflect.Value) (*handlerSignature, error) {
	if fVal.Kind() != reflect.Func {
		return nil, fmt.Errorf("invalid function passed to wrap handler: %v", fVal)
	}
	fTyp := fVal.Type()
	sig := &handlerSignature{name: runtime.FuncForPC(fVal.Pointer()).Name()}

	if fTyp.NumIn() != 2 {
		return nil, fmt.Errorf("[%s] invalid function arguments length: %d", sig.name, fTyp.NumIn())
	}
	if !fTyp.In(0).Implements(echoContextType) {
		return nil, fmt.Errorf("[%s] first argument must have type echo.Context", sig.name)
	}

	sig.reqType = fTyp.In(1)
	if sig.reqType.Kind() == reflect.Pointer {
		sig.reqPointer = true
		sig.reqType = sig.reqType.Elem()
	}
	if sig.reqType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("[%s] second argument must be a struct: %v", sig.name, fTyp.In(1))
	}

	switch fTyp.NumOut() {
	case 1:
	case 2:
		sig.hasResult = true
	default:
		return nil, fmt.Errorf("[%s] invalid function returns length: %d", sig.name, fTyp.NumOut())
	}
	if last := fTyp.Out(fTyp.NumOut() - 1); !last.Implements(errorType) {
		return nil, fmt.Errorf("[%s] last return argument must have type error: %v", sig.name, last)
	}
	return sig, nil
}

func wrapHandler(f any) (echo.HandlerFunc, error) {
	fVal := reflect.ValueOf(f)
	sig, err := inspectHandler(fVal)
	if err != nil {
		return nil, err
	}

	return func(c echo.Context) error {
		req := reflect.New(sig.reqType)
		if err := BindAndValidate(c, req.Interface()); err != nil {
			return err
		}
		arg := req
		if !sig.reqPointer {
			arg = req.Elem()
		}

		out := fVal.Call([]reflect.Value{reflect.ValueOf(c), arg})
		if errVal := out[len(out)-1]; !errVal.IsNil() {
			return errVal.Interface().(error)
		}
		if c.Response().Committed {
			return nil
		}

		var data any
		if sig.hasResult && !isNilValue(out[0]) {
			data = out[0].Interface()
		}
		if data == nil {
			c.Response().Header().Del(echo.HeaderContentType)
			return c.NoContent(http.StatusNoContent)
		}

		body, ok := data.(*Response)
		if !ok {
			body = &Response{Status: http.StatusOK, Success: true, Data: data}
		}
		if body.Status == 0 {
			body.Status = http.StatusOK
		}
		return c.JSON(body.Status, body)
	}, nil
}

// isNilValue reports nil pointers and interfaces. Nil slices still answer
// with a body so empty listings stay 200.
func isNilValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		return v.IsNil()
	}
	return false
}
