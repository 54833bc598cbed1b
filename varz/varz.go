/*
varz creates expvar variables named after the package that declares them,
and serves the ones under a given prefix at /varz.
*/
package varz

import (
	"encoding/json"
	"expvar"
	"net/http"
	"runtime"
	"strings"
)

// callerPackage returns the import path of whoever called our caller.
// Declarations in a var block run in the package's init, so the trailing
// function name is cut off.
func callerPackage() string {
	pc, _, _, ok := runtime.Caller(2)
	if !ok {
		return "varz.unknown"
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "varz.unknown"
	}

	n := fn.Name()
	slash := strings.LastIndex(n, "/")
	if dot := strings.Index(n[slash+1:], "."); dot != -1 {
		n = n[:slash+1+dot]
	}
	return n
}

func NewInt(name string) *expvar.Int {
	return expvar.NewInt(callerPackage() + "." + name)
}

func NewMap(name string) *expvar.Map {
	return expvar.NewMap(callerPackage() + "." + name)
}

// Snapshot collects every published variable whose name starts with prefix,
// keyed by the name with the prefix removed.
func Snapshot(prefix string) map[string]json.RawMessage {
	out := map[string]json.RawMessage{}
	expvar.Do(func(kv expvar.KeyValue) {
		if !strings.HasPrefix(kv.Key, prefix) {
			return
		}
		out[strings.TrimPrefix(kv.Key, prefix)] = json.RawMessage(kv.Value.String())
	})
	return out
}

// Handler serves Snapshot(prefix) as a JSON object.
func Handler(prefix string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.Encode(Snapshot(prefix))
	})
}
