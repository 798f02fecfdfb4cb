package jsonrpc

import "encoding/json"

const Version = "2.0"

const MethodGetWork = "getwork"

type Request struct {
	Id      interface{} `json:"id"`
	Version string      `json:"jsonrpc,omitempty"`
	Method  string      `json:"method"`
	Params  []string    `json:"params"`
}

type Response struct {
	Id      interface{} `json:"id"`
	Version string      `json:"jsonrpc,omitempty"`
	Result  interface{} `json:"result"`
	Error   interface{} `json:"error"`
}

// Error is the error object carried by a failed response.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewGetWork builds a getwork call, a submission when data is given.
func NewGetWork(id int, data ...string) Request {
	params := []string{}
	if len(data) > 0 && data[0] != "" {
		params = append(params, data[0])
	}
	return Request{Id: id, Method: MethodGetWork, Params: params}
}

func UnmarshalRequest(b []byte) (Request, error) {
	var req Request
	err := json.Unmarshal(b, &req)
	return req, err
}

func UnmarshalResponse(b []byte) (Response, error) {
	var resp Response
	err := json.Unmarshal(b, &resp)
	return resp, err
}

func MarshalResponse(r Response) []byte {
	resp, _ := json.Marshal(r)
	return resp
}

func MarshalRequest(r Request) []byte {
	req, _ := json.Marshal(r)
	return req
}
