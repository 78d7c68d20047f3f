//go:build js && wasm

package web

import (
	"encoding/json"
	"fmt"
	"syscall/js"

	"github.com/stelwidget/stelwidget/web/jsutil"
)

// request mirrors the session package's frame shape: the host sends
// {id, op, src}, the page answers {id, value} or {id, error}.
type request struct {
	ID  uint64 `json:"id"`
	Op  string `json:"op"`
	Src string `json:"src"`
}

// connectSession dials the host's script-execution channel and services
// exec/eval frames against the page. The URL comes from the global the
// host page template sets; pages without one (static embedding) simply
// have no channel.
func connectSession() {
	urlv := js.Global().Get("__stelwidgetSessionURL")
	if urlv.Type() != js.TypeString || urlv.String() == "" {
		return
	}
	url := urlv.String()

	ws := js.Global().Get("WebSocket").New(url)
	ws.Set("onmessage", js.FuncOf(func(this js.Value, args []js.Value) any {
		data := args[0].Get("data").String()
		var req request
		if err := json.Unmarshal([]byte(data), &req); err != nil {
			jsutil.Error("stelwidget: bad session frame:", err.Error())
			return nil
		}
		go serve(ws, req)
		return nil
	}))
	ws.Set("onerror", js.FuncOf(func(this js.Value, args []js.Value) any {
		jsutil.Error("stelwidget: session socket error")
		return nil
	}))
	ws.Set("onopen", js.FuncOf(func(this js.Value, args []js.Value) any {
		jsutil.Log("stelwidget: session connected")
		return nil
	}))
}

func serve(ws js.Value, req request) {
	switch req.Op {
	case "exec":
		if _, err := evalJS(req.Src); err != nil {
			jsutil.Error("stelwidget: exec failed:", err.Error())
		}
	case "eval":
		reply := map[string]any{"id": req.ID}
		v, err := evalJS(req.Src)
		if err != nil {
			reply["error"] = err.Error()
		} else if raw := stringify(v); raw != "" {
			reply["value"] = json.RawMessage(raw)
		}
		out, err := json.Marshal(reply)
		if err != nil {
			jsutil.Error("stelwidget: encode reply:", err.Error())
			return
		}
		ws.Call("send", string(out))
	}
}

// evalJS evaluates src in page scope, converting thrown values into
// errors instead of Go panics.
func evalJS(src string) (v js.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			v = js.Undefined()
			switch e := r.(type) {
			case js.Error:
				err = fmt.Errorf("%s", jsErrorMessage(e.Value))
			case error:
				err = e
			default:
				err = fmt.Errorf("%v", r)
			}
		}
	}()
	return js.Global().Call("eval", src), nil
}

func jsErrorMessage(v js.Value) string {
	if v.Type() == js.TypeObject {
		if msg := v.Get("message"); msg.Type() == js.TypeString {
			return msg.String()
		}
	}
	return js.Global().Get("String").Invoke(v).String()
}

// stringify converts a JS value into its JSON text, or "" for
// undefined.
func stringify(v js.Value) string {
	if v.IsUndefined() {
		return ""
	}
	out := js.Global().Get("JSON").Call("stringify", v)
	if out.Type() != js.TypeString {
		return ""
	}
	return out.String()
}
