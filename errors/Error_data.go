package errors

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ErrDataI is structured context attached to an Error, such as the address
// and ban score of the peer it concerns.
type ErrDataI interface {
	Error() string
	GetData(key string) interface{}
	SetData(key string, value interface{})
}

// ErrData renders as space separated key=value pairs in key order so log
// lines stay stable.
type ErrData map[string]interface{}

func (e *ErrData) Error() string {
	if e == nil || len(*e) == 0 {
		return ""
	}

	pairs := make([]string, 0, len(*e))
	for _, key := range slices.Sorted(maps.Keys(*e)) {
		pairs = append(pairs, fmt.Sprintf("%s=%v", key, (*e)[key]))
	}

	return " " + strings.Join(pairs, " ")
}

func (e *ErrData) SetData(key string, value interface{}) {
	if e == nil {
		return
	}

	(*e)[key] = value
}

func (e *ErrData) GetData(key string) interface{} {
	if e == nil {
		return nil
	}

	return (*e)[key]
}
