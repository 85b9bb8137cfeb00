// Package bsvjson holds the JSON-RPC 1.0 request, response and error types
// spoken by the node control service.
package bsvjson

import (
	"encoding/json"
	"fmt"
)

// RPCErrorCode is a bitcoind compatible JSON-RPC error code.
type RPCErrorCode int

const (
	ErrRPCInvalidRequest RPCErrorCode = -32600
	ErrRPCMethodNotFound RPCErrorCode = -32601
	ErrRPCInvalidParams  RPCErrorCode = -32602
	ErrRPCInternal       RPCErrorCode = -32603
	ErrRPCParse          RPCErrorCode = -32700

	ErrRPCMisc             RPCErrorCode = -1
	ErrRPCBlockNotFound    RPCErrorCode = -5
	ErrRPCInvalidParameter RPCErrorCode = -8
	ErrRPCDecodeHexString  RPCErrorCode = -22
)

// RPCError is the error member of a Response.
type RPCError struct {
	Code    RPCErrorCode `json:"code"`
	Message string       `json:"message"`
}

func (e RPCError) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

func NewRPCError(code RPCErrorCode, message string) *RPCError {
	return &RPCError{
		Code:    code,
		Message: message,
	}
}

// Request is a JSON-RPC request. ID may be any JSON value and is echoed back
// unchanged.
type Request struct {
	Jsonrpc string            `json:"jsonrpc,omitempty"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

// Response carries exactly one of Result or Error.
type Response struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
	ID     *interface{}    `json:"id"`
}

// NewRequest marshals params into a request for method.
func NewRequest(id interface{}, method string, params ...interface{}) (*Request, error) {
	rawParams := make([]json.RawMessage, 0, len(params))

	for _, param := range params {
		marshalled, err := json.Marshal(param)
		if err != nil {
			return nil, err
		}

		rawParams = append(rawParams, marshalled)
	}

	return &Request{
		Jsonrpc: "1.0",
		ID:      id,
		Method:  method,
		Params:  rawParams,
	}, nil
}

// MarshalResponse returns the JSON encoding of a response for id. rpcErr
// wins over result when both are set.
func MarshalResponse(id interface{}, result interface{}, rpcErr *RPCError) ([]byte, error) {
	var marshalledResult []byte

	if rpcErr == nil {
		var err error

		marshalledResult, err = json.Marshal(result)
		if err != nil {
			return nil, err
		}
	}

	return json.Marshal(&Response{
		Result: marshalledResult,
		Error:  rpcErr,
		ID:     &id,
	})
}
