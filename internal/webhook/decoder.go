package webhook

import (
	"encoding/json"

	"github.com/hitoshi/castman/internal/model"
)

// Event は検証済みペイロードから復元されたIDライフサイクルイベントの閉じた直和型。
// UserCreated / UserUpdated / UserDeleted / Ignored のいずれか。
type Event interface {
	isEvent()
}

// UserCreated はuser.createdイベントを表す。
type UserCreated struct {
	ProviderUserID string
	Email          string
	ImageURL       string
	Name           string
}

// UserUpdated はuser.updatedイベントを表す。
type UserUpdated struct {
	ProviderUserID string
	Email          string
	ImageURL       string
}

// UserDeleted はuser.deletedイベントを表す。
type UserDeleted struct {
	ProviderUserID string
}

// Ignored は認識したが処理対象外のイベント種別を表す。
// プロバイダが将来追加するイベントへの前方互換のため、
// エラーではなく明示的なバリアントとして扱う。
type Ignored struct {
	Type string
}

func (UserCreated) isEvent() {}
func (UserUpdated) isEvent() {}
func (UserDeleted) isEvent() {}
func (Ignored) isEvent()     {}

// envelope はプロバイダのWebhookペイロードの外枠。
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// userData はユーザー系イベントのdata部。
type userData struct {
	ID             string         `json:"id"`
	EmailAddresses []emailAddress `json:"email_addresses"`
	ImageURL       string         `json:"image_url"`
	FirstName      string         `json:"first_name"`
}

type emailAddress struct {
	EmailAddress string `json:"email_address"`
}

// primaryEmail は先頭のメールアドレスを返す。存在しない場合は空文字列。
func (d userData) primaryEmail() string {
	if len(d.EmailAddresses) == 0 {
		return ""
	}
	return d.EmailAddresses[0].EmailAddress
}

// Decode は検証済みペイロードを型付きイベントにデコードする。
// 未知のイベント種別はIgnoredとして返し、エラーにはしない。
// 封筒の解析失敗や必須フィールドの欠落は*model.APIError（MALFORMED_EVENT）。
func Decode(body []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, model.NewMalformedEventError("JSONの解析に失敗しました")
	}
	if env.Type == "" {
		return nil, model.NewMalformedEventError("typeフィールドがありません")
	}

	switch env.Type {
	case "user.created":
		data, err := decodeUserData(env.Data)
		if err != nil {
			return nil, err
		}
		return UserCreated{
			ProviderUserID: data.ID,
			Email:          data.primaryEmail(),
			ImageURL:       data.ImageURL,
			Name:           data.FirstName,
		}, nil

	case "user.updated":
		data, err := decodeUserData(env.Data)
		if err != nil {
			return nil, err
		}
		return UserUpdated{
			ProviderUserID: data.ID,
			Email:          data.primaryEmail(),
			ImageURL:       data.ImageURL,
		}, nil

	case "user.deleted":
		data, err := decodeUserData(env.Data)
		if err != nil {
			return nil, err
		}
		return UserDeleted{ProviderUserID: data.ID}, nil

	default:
		return Ignored{Type: env.Type}, nil
	}
}

// decodeUserData はユーザー系イベントのdata部をデコードする。
// 相関キーであるidの欠落は形式不正として拒否する。
func decodeUserData(raw json.RawMessage) (*userData, error) {
	var data userData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, model.NewMalformedEventError("dataフィールドの解析に失敗しました")
	}
	if data.ID == "" {
		return nil, model.NewMalformedEventError("data.idフィールドがありません")
	}
	return &data, nil
}
