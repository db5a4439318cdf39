package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	xendit "github.com/xendit/xendit-go/v6"
	"github.com/xendit/xendit-go/v6/invoice"

	"github.com/ds124wfegd/car-rental/config"
)

// CallbackTokenHeader carries the shared secret on Xendit callbacks.
const CallbackTokenHeader = "x-callback-token"

const minorPerMajor = 100

// xenditInvoice is the subset of a Xendit invoice the adapter reads.
type xenditInvoice struct {
	ID     string
	URL    string
	Status string
	Amount float64
}

type invoiceAPI interface {
	Create(ctx context.Context, externalID string, amount float64, currency, description string) (xenditInvoice, error)
	Get(ctx context.Context, id string) (xenditInvoice, error)
}

// Xendit creates charges as Xendit invoices.
type Xendit struct {
	api           invoiceAPI
	callbackToken string
	currency      string
	minAmount     int64
}

func NewXendit(cfg *config.GatewayConfig) *Xendit {
	return newXendit(&sdkInvoices{
		client:     xendit.NewClient(cfg.SecretKey),
		successURL: cfg.SuccessURL,
		failureURL: cfg.FailureURL,
	}, cfg)
}

func newXendit(api invoiceAPI, cfg *config.GatewayConfig) *Xendit {
	return &Xendit{
		api:           api,
		callbackToken: cfg.CallbackToken,
		currency:      cfg.Currency,
		minAmount:     cfg.MinAmount,
	}
}

func (x *Xendit) MinAmount() int64 { return x.minAmount }

func (x *Xendit) Currency() string { return x.currency }

func (x *Xendit) CreateCharge(ctx context.Context, req ChargeRequest) (ChargeRef, error) {
	currency := req.Currency
	if currency == "" {
		currency = x.currency
	}

	inv, err := x.api.Create(ctx, req.ExternalID, float64(req.Amount)/minorPerMajor, currency, req.Description)
	if err != nil {
		return ChargeRef{}, fmt.Errorf("failed to create xendit invoice %s: %w", req.ExternalID, err)
	}
	if inv.ID == "" {
		return ChargeRef{}, fmt.Errorf("xendit invoice %s: %w", req.ExternalID, ErrMalformedPayload)
	}
	return ChargeRef{ID: inv.ID, URL: inv.URL}, nil
}

func (x *Xendit) RetrieveCharge(ctx context.Context, chargeID string) (ChargeState, error) {
	inv, err := x.api.Get(ctx, chargeID)
	if err != nil {
		return ChargeState{}, fmt.Errorf("failed to get xendit invoice %s: %w", chargeID, err)
	}
	return ChargeState{
		ID:       inv.ID,
		Status:   invoiceChargeStatus(inv.Status),
		Amount:   int64(math.Round(inv.Amount * minorPerMajor)),
		Currency: x.currency,
	}, nil
}

type invoiceCallback struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
}

// ParseNotification authenticates and decodes an invoice callback.
func (x *Xendit) ParseNotification(header http.Header, body []byte) (Notification, error) {
	token := header.Get(CallbackTokenHeader)
	if x.callbackToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(x.callbackToken)) != 1 {
		return Notification{}, ErrInvalidCallbackToken
	}

	var cb invoiceCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if cb.ID == "" || cb.Status == "" {
		return Notification{}, fmt.Errorf("%w: missing id or status", ErrMalformedPayload)
	}

	return Notification{
		EventType:    "invoice." + strings.ToLower(cb.Status),
		ChargeID:     cb.ID,
		ChargeStatus: invoiceChargeStatus(cb.Status),
	}, nil
}

func invoiceChargeStatus(status string) ChargeStatus {
	switch strings.ToUpper(status) {
	case string(invoice.INVOICESTATUS_PAID), string(invoice.INVOICESTATUS_SETTLED):
		return ChargePaid
	case string(invoice.INVOICESTATUS_EXPIRED):
		return ChargeExpired
	case string(invoice.INVOICESTATUS_PENDING):
		return ChargePending
	}
	return ChargeFailed
}

type sdkInvoices struct {
	client     *xendit.APIClient
	successURL string
	failureURL string
}

func (s *sdkInvoices) Create(ctx context.Context, externalID string, amount float64, currency, description string) (xenditInvoice, error) {
	req := invoice.NewCreateInvoiceRequest(externalID, amount)
	req.SetCurrency(currency)
	req.SetDescription(description)
	if s.successURL != "" {
		req.SetSuccessRedirectUrl(s.successURL)
	}
	if s.failureURL != "" {
		req.SetFailureRedirectUrl(s.failureURL)
	}

	inv, _, sdkErr := s.client.InvoiceApi.CreateInvoice(ctx).CreateInvoiceRequest(*req).Execute()
	if sdkErr != nil {
		return xenditInvoice{}, errors.New(sdkErr.Error())
	}
	return xenditInvoice{
		ID:     inv.GetId(),
		URL:    inv.GetInvoiceUrl(),
		Status: string(inv.GetStatus()),
		Amount: inv.GetAmount(),
	}, nil
}

func (s *sdkInvoices) Get(ctx context.Context, id string) (xenditInvoice, error) {
	inv, _, sdkErr := s.client.InvoiceApi.GetInvoiceById(ctx, id).Execute()
	if sdkErr != nil {
		return xenditInvoice{}, errors.New(sdkErr.Error())
	}
	return xenditInvoice{
		ID:     inv.GetId(),
		URL:    inv.GetInvoiceUrl(),
		Status: string(inv.GetStatus()),
		Amount: inv.GetAmount(),
	}, nil
}
