// Package messaging delivers WhatsApp messages through Twilio.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/twilio/twilio-go"
	twilioClient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

const addressPrefix = "whatsapp:"

// Address turns an E.164 phone into a WhatsApp channel address.
func Address(phone string) string {
	if strings.HasPrefix(phone, addressPrefix) {
		return phone
	}
	return addressPrefix + phone
}

// Phone strips the channel prefix from a WhatsApp address.
func Phone(address string) string {
	return strings.TrimPrefix(strings.TrimSpace(address), addressPrefix)
}

type TwilioGateway struct {
	client *twilio.RestClient
	from   string
}

func NewTwilioGateway(accountSID, authToken, from string) *TwilioGateway {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioGateway{client: client, from: from}
}

// SendTemplate sends an approved content template. It returns the message SID.
func (g *TwilioGateway) SendTemplate(ctx context.Context, to, contentSID string, variables map[string]string) (string, error) {
	payload, err := json.Marshal(variables)
	if err != nil {
		return "", fmt.Errorf("failed to encode content variables: %w", err)
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(Address(g.from))
	params.SetTo(Address(to))
	params.SetContentSid(contentSID)
	params.SetContentVariables(string(payload))

	return g.create(ctx, params)
}

func (g *TwilioGateway) SendText(ctx context.Context, to, body string) (string, error) {
	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(Address(g.from))
	params.SetTo(Address(to))
	params.SetBody(body)

	return g.create(ctx, params)
}

func (g *TwilioGateway) create(ctx context.Context, params *twilioApi.CreateMessageParams) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	resp, err := g.client.Api.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("twilio: %w", err)
	}
	if resp.Sid == nil {
		return "", fmt.Errorf("twilio: response without message sid")
	}
	return *resp.Sid, nil
}

// DryRunGateway logs outgoing messages instead of sending them.
type DryRunGateway struct {
	logger *slog.Logger
}

func NewDryRunGateway(logger *slog.Logger) *DryRunGateway {
	return &DryRunGateway{logger: logger}
}

func (g *DryRunGateway) SendTemplate(ctx context.Context, to, contentSID string, variables map[string]string) (string, error) {
	sid := "dry-run-" + uuid.NewString()
	g.logger.Info("dry-run template message", "to", to, "content_sid", contentSID, "variables", variables, "sid", sid)
	return sid, nil
}

func (g *DryRunGateway) SendText(ctx context.Context, to, body string) (string, error) {
	sid := "dry-run-" + uuid.NewString()
	g.logger.Info("dry-run text message", "to", to, "length", len(body), "sid", sid)
	return sid, nil
}

// SignatureValidator checks the X-Twilio-Signature header of webhook calls.
type SignatureValidator struct {
	validator twilioClient.RequestValidator
}

func NewSignatureValidator(authToken string) *SignatureValidator {
	return &SignatureValidator{validator: twilioClient.NewRequestValidator(authToken)}
}

func (v *SignatureValidator) Valid(url string, params map[string]string, signature string) bool {
	return v.validator.Validate(url, params, signature)
}
