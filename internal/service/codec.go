package service

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName - подтип content-type для сообщений сервиса ("application/grpc+json")
const CodecName = "json"

// jsonCodec кодирует сообщения сервиса без сгенерированных protobuf-типов
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
