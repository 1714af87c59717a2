package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/mamadbah2/farmledger/internal/domain/models"
	client "github.com/mamadbah2/farmledger/pkg/clients/whatsapp"
)

type fakeMessaging struct {
	handleErr error
	sendErr   error
	handled   int
}

func (f *fakeMessaging) VerifyWebhookToken(mode, token, challenge string) (string, error) {
	if mode != "subscribe" || token != "secret" {
		return "", errors.New("invalid verify token")
	}
	return challenge, nil
}

func (f *fakeMessaging) HandleWebhook(context.Context, models.WebhookPayload) error {
	f.handled++
	return f.handleErr
}

func (f *fakeMessaging) SendOutbound(context.Context, models.OutboundMessageRequest) error {
	return f.sendErr
}

func serve(h gin.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, target, strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	h(c)
	c.Writer.WriteHeaderNow()
	return rec
}

func TestWebhookVerify(t *testing.T) {
	h := NewWebhookHandler(&fakeMessaging{}, nil)

	rec := serve(h.Verify, http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=secret&hub.challenge=99", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "99", rec.Body.String())

	rec = serve(h.Verify, http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=nope&hub.challenge=99", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWebhookReceive_AlwaysAcksParsedPayload(t *testing.T) {
	svc := &fakeMessaging{handleErr: errors.New("reply not delivered")}
	h := NewWebhookHandler(svc, nil)

	rec := serve(h.Receive, http.MethodPost, "/webhook", `{"object":"whatsapp_business_account","entry":[]}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, svc.handled)

	rec = serve(h.Receive, http.MethodPost, "/webhook", `{"entry":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 1, svc.handled)
}

func TestWebhookSendMessage(t *testing.T) {
	svc := &fakeMessaging{}
	h := NewWebhookHandler(svc, nil)

	assert.Equal(t, http.StatusAccepted, serve(h.SendMessage, http.MethodPost, "/send-message", `{"message":"vaccines arrive tomorrow"}`).Code)
	assert.Equal(t, http.StatusBadRequest, serve(h.SendMessage, http.MethodPost, "/send-message", `{"to":"2246"}`).Code)

	svc.sendErr = &client.APIError{StatusCode: http.StatusTooManyRequests, Message: "rate limited"}
	rec := serve(h.SendMessage, http.MethodPost, "/send-message", `{"message":"hi"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))

	svc.sendErr = &client.APIError{StatusCode: http.StatusBadRequest, Message: "recipient not in allowed list"}
	assert.Equal(t, http.StatusBadGateway, serve(h.SendMessage, http.MethodPost, "/send-message", `{"message":"hi"}`).Code)
}
