package server

import (
	"context"
	"fmt"
	"reflect"
)

type methodType struct {
	method    reflect.Method
	ArgType   reflect.Type
	ReplyType reflect.Type
}

type service struct {
	name   string
	rcvr   reflect.Value
	typ    reflect.Type
	method map[string]*methodType
}

// newService 创建 service 并扫描所有合法方法
func newService(rcvr any) (*service, error) {
	typ := reflect.TypeOf(rcvr)
	if typ == nil || typ.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("rpc: rcvr must be a pointer, got %v", typ)
	}
	if typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("rpc: rcvr must point to a struct, got %s", typ.Elem().Kind())
	}
	s := &service{
		name:   typ.Elem().Name(),
		rcvr:   reflect.ValueOf(rcvr),
		typ:    typ,
		method: make(map[string]*methodType),
	}
	s.registerMethods()
	if len(s.method) == 0 {
		return nil, fmt.Errorf("rpc: %s has no method of the form Method(*Args, *Reply) error", s.name)
	}
	return s, nil
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// registerMethods 扫描 struct 的导出方法，过滤出符合 RPC 签名的:
// (receiver, *Args, *Reply) error
func (s *service) registerMethods() {
	for i := 0; i < s.typ.NumMethod(); i++ {
		method := s.typ.Method(i)
		if method.Type.NumIn() != 3 || method.Type.NumOut() != 1 || method.Type.Out(0) != errorType ||
			method.Type.In(1).Kind() != reflect.Ptr || method.Type.In(2).Kind() != reflect.Ptr {
			continue
		}
		s.method[method.Name] = &methodType{
			method:    method,
			ArgType:   method.Type.In(1).Elem(),
			ReplyType: method.Type.In(2).Elem(),
		}
	}
}

// call 通过反射调用方法
func (s *service) call(mType *methodType, argv, replyv reflect.Value) error {
	args := [3]reflect.Value{s.rcvr, argv, replyv}
	results := mType.method.Func.Call(args[:])
	if !results[0].IsNil() {
		return results[0].Interface().(error)
	}
	return nil
}

// handler adapts one method to a Handler: params decode into a fresh *Args and the
// filled *Reply is the result.
func (s *service) handler(mType *methodType) Handler {
	return func(ctx context.Context, params Params) Result {
		argv := reflect.New(mType.ArgType)
		replyv := reflect.New(mType.ReplyType)
		if len(params) > 0 {
			if err := params.Bind(argv.Interface()); err != nil {
				return Error(err)
			}
		}
		if err := s.call(mType, argv, replyv); err != nil {
			return Error(err)
		}
		return Value(replyv.Interface())
	}
}

// RegisterService registers every method of rcvr shaped like
//
//	func (t *T) Method(args *Args, reply *Reply) error
//
// under the name "T.Method". Methods fail with *message.Error values to send a
// JSON-RPC error; other errors are fatal like for any handler.
func (s *Server) RegisterService(rcvr any) error {
	svc, err := newService(rcvr)
	if err != nil {
		return err
	}
	for name, mType := range svc.method {
		s.Register(svc.name+"."+name, svc.handler(mType))
	}
	return nil
}
