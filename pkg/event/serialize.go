package event

import (
	"encoding/json"
	"fmt"
)

// Encode はイベント名とペイロードからWebSocketに書き込むJSONを生成する。
func Encode(eventType Type, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("イベントデータのシリアライズに失敗: %w", err)
	}

	msg, err := json.Marshal(Envelope{Event: eventType, Data: data})
	if err != nil {
		return nil, fmt.Errorf("エンベロープのシリアライズに失敗: %w", err)
	}
	return msg, nil
}

// Decode はWebSocketから読み込んだJSONをエンベロープにデシリアライズする。
func Decode(msg []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return nil, fmt.Errorf("エンベロープのデシリアライズに失敗: %w", err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("イベント名が空です")
	}
	return &env, nil
}

// DecodeData はエンベロープのDataフィールドを指定された型にデシリアライズする。
func DecodeData[T any](e *Envelope) (*T, error) {
	var data T
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, fmt.Errorf("イベントデータのデシリアライズに失敗: %w", err)
	}
	return &data, nil
}
