package bitflyer

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/pkg/errors"
)

func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, body any, auth bool, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "Не удалось подготовить тело запроса")
		}
	}

	req := c.http.R().SetContext(ctx)
	if len(params) > 0 {
		req.SetQueryParamsFromValues(params)
	}
	if payload != nil {
		req.SetBody(payload)
	}

	if auth {
		timestamp := strconv.FormatInt(c.now().UnixMilli(), 10)
		signPath := path
		if len(params) > 0 {
			signPath += "?" + params.Encode()
		}
		req.SetHeader("ACCESS-KEY", c.apiKey)
		req.SetHeader("ACCESS-TIMESTAMP", timestamp)
		req.SetHeader("ACCESS-SIGN", sign(c.secret, timestamp+method+signPath+string(payload)))
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return errors.Wrap(err, "Ошибка запроса")
	}

	if resp.IsError() {
		var apiErr errorResponse
		if jsonErr := json.Unmarshal(resp.Body(), &apiErr); jsonErr == nil && apiErr.Message != "" {
			return errors.Errorf("Ошибка bitflyer: %s (status=%d, http=%d)", apiErr.Message, apiErr.Status, resp.StatusCode())
		}
		return errors.Errorf("Неуспешный статус: %s", resp.Status())
	}

	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return errors.Wrap(err, "Не удалось разобрать ответ")
	}
	return nil
}

func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
