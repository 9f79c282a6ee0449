package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"

	"github.com/google/uuid"
)

// jwtHeader - фиксированный заголовок {"alg":"HS256","typ":"JWT"},
// закодированный base64url
const jwtHeader = "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9"

// authPayload - полезная нагрузка JWT для приватных эндпоинтов Upbit
type authPayload struct {
	AccessKey    string `json:"access_key"`
	Nonce        string `json:"nonce"`
	QueryHash    string `json:"query_hash,omitempty"`
	QueryHashAlg string `json:"query_hash_alg,omitempty"`
}

// authToken строит JWT (HS256) для запроса к приватному API Upbit.
// rawQuery - строка параметров ровно в том виде, в котором она уходит
// на биржу: её SHA512-хеш кладётся в query_hash, и любое расхождение
// с реально отправленной строкой даёт ошибку подписи на стороне Upbit.
func authToken(accessKey, secretKey, rawQuery string) (string, error) {
	payload := authPayload{
		AccessKey: accessKey,
		Nonce:     uuid.NewString(),
	}

	if rawQuery != "" {
		sum := sha512.Sum512([]byte(rawQuery))
		payload.QueryHash = hex.EncodeToString(sum[:])
		payload.QueryHashAlg = "SHA512"
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	signingInput := jwtHeader + "." + base64.RawURLEncoding.EncodeToString(payloadJSON)

	h := hmac.New(sha256.New, []byte(secretKey))
	h.Write([]byte(signingInput))
	signature := base64.RawURLEncoding.EncodeToString(h.Sum(nil))

	return signingInput + "." + signature, nil
}
