package util

import (
	"encoding/json"
)

// EncoderDecoder converts values to and from their stored or wire form. The
// engine serializes everything as JSON; the interface keeps the codec
// swappable per payload type.
type EncoderDecoder[T any] interface {
	Encode(value T) ([]byte, error)
	Decode(data []byte) (*T, error)
}

type JsonEncDec[T any] struct{}

var _ EncoderDecoder[any] = new(JsonEncDec[any])

func NewJsonEncoderDecoder[T any]() *JsonEncDec[T] {
	return &JsonEncDec[T]{}
}

func (encdec *JsonEncDec[T]) Encode(value T) ([]byte, error) {
	return json.Marshal(value)
}

func (encdec *JsonEncDec[T]) Decode(data []byte) (*T, error) {
	res := new(T)
	if err := json.Unmarshal(data, res); err != nil {
		return nil, err
	}
	return res, nil
}
