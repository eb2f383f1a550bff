package jsock

import (
	"fmt"
	"github.com/pkg/errors"
)

// The wire protocol is JSON-RPC 2.0 over WebSocket. Single interactions are
// plain requests and notifies. Sequences ride a small sub-protocol of notify
// frames keyed by the originating request id:
//
//	sock.data  [id, element]   one sequence element
//	sock.end   [id]            normal termination
//	sock.error [id, {code, message}] failed termination
//
// A request whose single param is {"$stream": id} declares that the sender
// will feed sock.data frames for the request payload. Stream opens are acked
// with a result of the same marker shape.
const (
	methodData  = "sock.data"
	methodEnd   = "sock.end"
	methodError = "sock.error"

	streamKey = "$stream"
)

// idString renders a message id uniformly. Request ids minted here are uuid
// strings already.
func idString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// streamOpenId extracts the stream marker of an open request, if any.
func streamOpenId(params []interface{}) (string, bool) {
	if len(params) != 1 {
		return "", false
	}
	m, ok := params[0].(map[string]interface{})
	if !ok {
		return "", false
	}
	v, ok := m[streamKey]
	if !ok {
		return "", false
	}
	return idString(v), true
}

func isStreamAck(result interface{}) bool {
	m, ok := result.(map[string]interface{})
	if !ok {
		return false
	}
	_, has := m[streamKey]
	return has
}

// frameParams splits a sock.* frame into its stream id and optional body.
func frameParams(params []interface{}) (string, interface{}, bool) {
	if len(params) == 0 {
		return "", nil, false
	}
	sid := idString(params[0])
	if len(params) > 1 {
		return sid, params[1], true
	}
	return sid, nil, true
}

func errorBody(err error) map[string]interface{} {
	return map[string]interface{}{
		"code":    -32000,
		"message": err.Error(),
	}
}

func remoteError(body interface{}) error {
	if m, ok := body.(map[string]interface{}); ok {
		return errors.Errorf("remote error %v: %v", m["code"], m["message"])
	}
	return errors.New("remote error")
}
