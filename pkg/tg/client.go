package tg

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"confessd/pkg/logger"
)

// DefaultAPIBase is the production bot API root.
const DefaultAPIBase = "https://api.telegram.org"

// ErrBlocked marks a delivery rejected because the recipient has blocked
// the bot (or otherwise forbids messages). Callers treat it as a
// per-recipient soft failure.
var ErrBlocked = fmt.Errorf("recipient unreachable")

// Client talks to the bot API over fasthttp. The zero value is not
// usable; construct with New.
type Client struct {
	base  string
	token string
	hc    *fasthttp.Client
}

// New returns a client for the given credential token. apiBase overrides
// the API root when non-empty (tests point it at a local server).
func New(token, apiBase string) *Client {
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	return &Client{
		base:  apiBase,
		token: token,
		hc: &fasthttp.Client{
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// apiResponse is the platform's uniform envelope.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

// call POSTs payload to the named bot method and decodes result into out
// when out is non-nil.
func (c *Client) call(method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", method, err)
	}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(fmt.Sprintf("%s/bot%s/%s", c.base, c.token, method))
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	if err := c.hc.Do(req, resp); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	var env apiResponse
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if !env.OK {
		if env.ErrorCode == fasthttp.StatusForbidden {
			return fmt.Errorf("%s: %w: %s", method, ErrBlocked, env.Description)
		}
		return fmt.Errorf("%s: api error %d: %s", method, env.ErrorCode, env.Description)
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("%s: decode result: %w", method, err)
		}
	}
	return nil
}

// SendMessage delivers text (with an optional keyboard) to a chat and
// returns the created message id.
func (c *Client) SendMessage(chatID int64, text string, kb *InlineKeyboardMarkup) (int, error) {
	payload := map[string]any{"chat_id": chatID, "text": text}
	if kb != nil {
		payload["reply_markup"] = kb
	}
	var msg Message
	if err := c.call("sendMessage", payload, &msg); err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// EditMessageText replaces a previously rendered interactive message in
// place, keeping the chat surface to one live view.
func (c *Client) EditMessageText(chatID int64, messageID int, text string, kb *InlineKeyboardMarkup) error {
	payload := map[string]any{"chat_id": chatID, "message_id": messageID, "text": text}
	if kb != nil {
		payload["reply_markup"] = kb
	}
	return c.call("editMessageText", payload, nil)
}

// AnswerCallback acknowledges a button tap, optionally with a toast text.
func (c *Client) AnswerCallback(callbackID, text string) error {
	payload := map[string]any{"callback_query_id": callbackID}
	if text != "" {
		payload["text"] = text
	}
	return c.call("answerCallbackQuery", payload, nil)
}

// GetMe verifies the credential token against the platform. Used as a
// startup health probe; failure is logged, not fatal.
func (c *Client) GetMe() error {
	var me User
	if err := c.call("getMe", map[string]any{}, &me); err != nil {
		return err
	}
	logger.Info("bot_identity", "id", me.ID, "username", me.Username)
	return nil
}
