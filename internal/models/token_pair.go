package models

// TokenPair — пара токенов, выдаваемая платформой при входе/регистрации.
//
// Описание:
//   - Access — короткоживущий bearer-токен для запросов к API;
//   - Refresh — долгоживущий токен, который обменивается на новый access.
//
// Для бота оба токена непрозрачны: он их не разбирает и не проверяет,
// а только хранит в Redis и подставляет в заголовки.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// HasAccess сообщает, есть ли в паре access-токен.
func (p TokenPair) HasAccess() bool { return p.Access != "" }

// HasRefresh сообщает, есть ли в паре refresh-токен.
func (p TokenPair) HasRefresh() bool { return p.Refresh != "" }

// Empty — в паре нет ни одного токена.
func (p TokenPair) Empty() bool { return p.Access == "" && p.Refresh == "" }
