package panelsense_ws

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type AuthResultCode string

const (
	AUTH_RESULT_SUCCESS AuthResultCode = "SUCCESS"
	AUTH_RESULT_FAILURE AuthResultCode = "FAILURE"
)

type AuthRequest struct {
	Token          string `json:"token"`
	VersionName    string `json:"versionName"`
	VersionCode    int    `json:"versionCode"`
	ClientName     string `json:"clientName"`
	InstallationId string `json:"installationId"`
}

func (AuthRequest) MessageType() MessageType {
	return MESSAGE_TYPE_AUTH
}

type AuthResult struct {
	AuthResult AuthResultCode `json:"authResult"`
	Detail     string         `json:"detail,omitempty"`
}

func (AuthResult) MessageType() MessageType {
	return MESSAGE_TYPE_AUTH
}

// CredentialToken builds the base64 `username:secret` token carried by AuthRequest.
func CredentialToken(username, secret string) string {
	token := base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%s:%s", username, secret)))
	return strings.ReplaceAll(token, "\n", "")
}

// ParseCredentialToken is the inverse of CredentialToken.
func ParseCredentialToken(token string) (string, string, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", "", err
	}
	username, secret, found := strings.Cut(string(raw), ":")
	if !found {
		return "", "", errors.New("token has no separator")
	}
	return username, secret, nil
}

func decodeAuthResult(data json.RawMessage) (Message, error) {
	res, err := unmarshalData[AuthResult](data)
	if err != nil {
		return nil, err
	}
	switch res.AuthResult {
	case AUTH_RESULT_SUCCESS, AUTH_RESULT_FAILURE:
		return res, nil
	default:
		return nil, fmt.Errorf("unknown auth result %q", res.AuthResult)
	}
}

func decodeAuthRequest(data json.RawMessage) (Message, error) {
	req, err := unmarshalData[AuthRequest](data)
	if err != nil {
		return nil, err
	}
	if req.Token == "" {
		return nil, errors.New("missing token")
	}
	return req, nil
}
