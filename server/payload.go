// Package server contains misc server utilities.
package server

import (
	"encoding/json"
	"go/types"
	"log"
	"net/http"
)

// FloatT is a struct with a single float64 field, used for json parsing
type FloatT struct {
	F64 float64 `json:"f64"`
}

// IntT is a struct with a single int field, used for json parsing
type IntT struct {
	Int int `json:"int"`
}

// StrT is a struct with a single string field, used for json parsing
type StrT struct {
	Str string `json:"str"`
}

// BoolT is a struct with a single bool field, used for json parsing
type BoolT struct {
	Bool bool `json:"bool"`
}

// HumanPayload is a struct that holds the payload of a response and can
// reply to an HTTP request with the field selected by T
type HumanPayload struct {
	// T holds the type of data actually filled
	T types.BasicKind

	Bool   bool
	Int    int
	Float  float64
	String string
}

// EncodeAndRespond writes the payload to w as json
func (hp HumanPayload) EncodeAndRespond(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var obj interface{}
	switch hp.T {
	case types.Bool:
		obj = BoolT{Bool: hp.Bool}
	case types.Int:
		obj = IntT{Int: hp.Int}
	case types.Float64:
		obj = FloatT{F64: hp.Float}
	case types.String:
		obj = StrT{Str: hp.String}
	default:
		http.Error(w, "unknown payload type", http.StatusInternalServerError)
		return
	}
	err := json.NewEncoder(w).Encode(obj)
	if err != nil {
		log.Printf("error encoding response payload %q", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
