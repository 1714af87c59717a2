package whatsapp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/farmledger/internal/config"
	"github.com/mamadbah2/farmledger/internal/domain/errs"
	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/service/notify"
	client "github.com/mamadbah2/farmledger/pkg/clients/whatsapp"
)

type recordingClient struct {
	sent []client.SendTextMessageRequest
	err  error
}

func (c *recordingClient) SendTextMessage(_ context.Context, req client.SendTextMessageRequest) (*client.SendTextMessageResponse, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.sent = append(c.sent, req)
	return &client.SendTextMessageResponse{}, nil
}

type stubDispatcher struct {
	got   []models.Command
	reply string
	err   error
}

func (d *stubDispatcher) HandleCommand(_ context.Context, cmd models.Command, _ string) (string, error) {
	d.got = append(d.got, cmd)
	return d.reply, d.err
}

func payload(from, id, body string) models.WebhookPayload {
	return models.WebhookPayload{Entry: []models.WebhookEntry{{
		Changes: []models.WebhookChange{{Value: models.WebhookValue{Messages: []models.InboundMessage{{
			From: from, ID: id, Type: "text", Text: &models.TextContent{Body: body},
		}}}}},
	}}}
}

func TestVerifyWebhookToken(t *testing.T) {
	svc := NewMetaWhatsAppService(config.WhatsAppConfig{VerifyToken: "secret"}, &recordingClient{}, &stubDispatcher{}, nil)

	challenge, err := svc.VerifyWebhookToken("subscribe", "secret", "42")
	require.NoError(t, err)
	assert.Equal(t, "42", challenge)

	_, err = svc.VerifyWebhookToken("subscribe", "wrong", "42")
	assert.Error(t, err)
	_, err = svc.VerifyWebhookToken("unsubscribe", "secret", "42")
	assert.Error(t, err)
	_, err = svc.VerifyWebhookToken("", "", "")
	assert.Error(t, err)
}

func TestHandleWebhook_RepliesAndRemembersLedger(t *testing.T) {
	wa := &recordingClient{}
	dispatcher := &stubDispatcher{reply: "ok"}
	svc := NewMetaWhatsAppService(config.WhatsAppConfig{}, wa, dispatcher, nil)
	ctx := context.Background()

	require.NoError(t, svc.HandleWebhook(ctx, payload("2246", "wamid.1", "/stock farm-1 layers 100")))
	require.NoError(t, svc.HandleWebhook(ctx, payload("2246", "wamid.2", "/mortality 3")))

	require.Len(t, dispatcher.got, 2)
	assert.Equal(t, "wamid.1", dispatcher.got[0].MessageID)
	assert.Equal(t, models.LedgerKey{FarmID: "farm-1", Category: models.CategoryLayers}, dispatcher.got[1].Key)
	assert.Equal(t, []string{"3"}, dispatcher.got[1].Args)

	require.Len(t, wa.sent, 2)
	assert.Equal(t, "2246", wa.sent[0].To)
	assert.Equal(t, "ok", wa.sent[0].Body)
}

func TestHandleWebhook_RejectionIsReplied(t *testing.T) {
	wa := &recordingClient{}
	dispatcher := &stubDispatcher{err: &errs.InsufficientStockError{Available: 2, Requested: 9}}
	svc := NewMetaWhatsAppService(config.WhatsAppConfig{}, wa, dispatcher, nil)

	require.NoError(t, svc.HandleWebhook(context.Background(), payload("2246", "wamid.3", "/sale farm-1 pigs 9 100")))
	require.Len(t, wa.sent, 1)
	assert.Equal(t, "Not enough stock: 2 available, 9 requested.", wa.sent[0].Body)
}

func TestHandleWebhook_DeliveryFailure(t *testing.T) {
	wa := &recordingClient{err: errors.New("graph api down")}
	svc := NewMetaWhatsAppService(config.WhatsAppConfig{}, wa, &stubDispatcher{reply: "ok"}, nil)

	err := svc.HandleWebhook(context.Background(), payload("2246", "wamid.4", "/help"))
	assert.ErrorIs(t, err, wa.err)
}

func TestHandleWebhook_IgnoresMedia(t *testing.T) {
	wa := &recordingClient{}
	dispatcher := &stubDispatcher{}
	svc := NewMetaWhatsAppService(config.WhatsAppConfig{}, wa, dispatcher, nil)

	p := payload("2246", "wamid.5", "")
	p.Entry[0].Changes[0].Value.Messages[0].Text = nil
	require.NoError(t, svc.HandleWebhook(context.Background(), p))
	assert.Empty(t, dispatcher.got)
	assert.Empty(t, wa.sent)
}

func TestNotify_ResetAlertsManager(t *testing.T) {
	wa := &recordingClient{}
	svc := NewMetaWhatsAppService(config.WhatsAppConfig{ManagerID: "2240"}, wa, &stubDispatcher{}, nil)
	key := models.LedgerKey{FarmID: "farm-1", Category: models.CategoryPigs}

	require.NoError(t, svc.Notify(context.Background(), notify.Change{Kind: notify.ChangeSale, Key: key}))
	require.NoError(t, svc.Notify(context.Background(), notify.Change{Kind: notify.ChangeReset, Key: key}))

	require.Len(t, wa.sent, 1)
	assert.Equal(t, "2240", wa.sent[0].To)
	assert.Contains(t, wa.sent[0].Body, "farm-1/pigs was reset")
}

func TestHandleWebhook_ButtonReplyAndSendTime(t *testing.T) {
	wa := &recordingClient{}
	dispatcher := &stubDispatcher{reply: "ok"}
	svc := NewMetaWhatsAppService(config.WhatsAppConfig{}, wa, dispatcher, nil)

	p := payload("2246", "wamid.6", "")
	msg := &p.Entry[0].Changes[0].Value.Messages[0]
	msg.Type = "interactive"
	msg.Text = nil
	msg.Timestamp = "1735722000"
	msg.Interactive = &models.InteractiveContent{Type: "button_reply", ButtonReply: &models.ReplyOption{ID: "/status farm-1 layers", Title: "Status"}}

	require.NoError(t, svc.HandleWebhook(context.Background(), p))
	require.Len(t, dispatcher.got, 1)
	assert.Equal(t, models.CommandStatus, dispatcher.got[0].Type)
	assert.True(t, dispatcher.got[0].SentAt.Equal(time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)))
}

func TestSendOutbound_DefaultsToManager(t *testing.T) {
	wa := &recordingClient{}
	svc := NewMetaWhatsAppService(config.WhatsAppConfig{ManagerID: "2240"}, wa, &stubDispatcher{}, nil)

	require.NoError(t, svc.SendOutbound(context.Background(), models.OutboundMessageRequest{Message: "feed truck late"}))
	require.NoError(t, svc.SendOutbound(context.Background(), models.OutboundMessageRequest{To: "2246", Message: "count the pigs"}))

	require.Len(t, wa.sent, 2)
	assert.Equal(t, "2240", wa.sent[0].To)
	assert.Equal(t, "2246", wa.sent[1].To)
}
