package merchant_test

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alovak/cardflow-3ds/acquirer"
	"github.com/alovak/cardflow-3ds/gateway"
	"github.com/alovak/cardflow-3ds/internal/logger"
	"github.com/alovak/cardflow-3ds/issuer"
	"github.com/alovak/cardflow-3ds/merchant"
)

type system struct {
	issuer   *issuer.App
	gateway  *gateway.App
	merchant *merchant.App
	client   *http.Client
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().String()
}

// startSystem runs all four roles on loopback listeners.
func startSystem(t *testing.T) *system {
	t.Helper()
	log := logger.Discard()
	merchantAddr := freeAddr(t)

	issuerConfig := issuer.DefaultConfig()
	issuerConfig.HTTPAddr = "127.0.0.1:0"
	issuerConfig.ISO8583Addr = "127.0.0.1:0"
	issuerConfig.CallbackURL = "http://" + merchantAddr + "/payment-callback"
	issuerApp := issuer.NewApp(log, issuerConfig)
	require.NoError(t, issuerApp.Start())
	t.Cleanup(issuerApp.Shutdown)

	acquirerConfig := acquirer.DefaultConfig()
	acquirerConfig.HTTPAddr = "127.0.0.1:0"
	acquirerConfig.Issuers = map[string]string{"local": issuerApp.ISO8583ServerAddr}
	acquirerConfig.BINRoutes = map[string]string{"1234": "local", "9999": "local"}
	acquirerApp := acquirer.NewApp(log, acquirerConfig)
	require.NoError(t, acquirerApp.Start())
	t.Cleanup(acquirerApp.Shutdown)

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.HTTPAddr = "127.0.0.1:0"
	gatewayConfig.AcquirerURL = "http://" + acquirerApp.Addr
	gatewayApp := gateway.NewApp(log, gatewayConfig)
	require.NoError(t, gatewayApp.Start())
	t.Cleanup(gatewayApp.Shutdown)

	merchantConfig := merchant.DefaultConfig()
	merchantConfig.HTTPAddr = merchantAddr
	merchantConfig.GatewayURL = "http://" + gatewayApp.Addr
	merchantApp := merchant.NewApp(log, merchantConfig)
	require.NoError(t, merchantApp.Start())
	t.Cleanup(merchantApp.Shutdown)

	return &system{
		issuer:   issuerApp,
		gateway:  gatewayApp,
		merchant: merchantApp,
		client: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
	}
}

func (s *system) checkout(t *testing.T, card string) (int, merchant.Payment) {
	t.Helper()
	body := `{"cardNumber":"` + card + `","expiryMonth":"12","expiryYear":"2025","cvv":"123","cardholderName":"Joe","amount":"99.99"}`
	resp, err := s.client.Post("http://"+s.merchant.Addr+"/checkout", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var payment merchant.Payment
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payment))
	return resp.StatusCode, payment
}

func (s *system) postForm(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := s.client.PostForm("http://"+s.issuer.Addr+path, form)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *system) payment(t *testing.T, token string) merchant.Payment {
	t.Helper()
	resp, err := s.client.Get("http://" + s.merchant.Addr + "/payments/" + token)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var p merchant.Payment
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	return p
}

func (s *system) loginAndDecide(t *testing.T, token, action string) {
	t.Helper()

	resp := s.postForm(t, "/login", url.Values{
		"token":    {token},
		"name":     {"Joe"},
		"password": {"password"},
		"card":     {"1234123412341234"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp = s.postForm(t, "/decide", url.Values{"token": {token}, "action": {action}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPaymentFlow_Confirm(t *testing.T) {
	s := startSystem(t)

	status, payment := s.checkout(t, "1234123412341234")
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, merchant.PaymentStatusChallenge, payment.Status)
	require.Equal(t, "http://"+s.issuer.Addr+"/challenge?token="+payment.Token, payment.ChallengeURL)

	resp, err := s.client.Get(payment.ChallengeURL)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.True(t, strings.HasPrefix(resp.Header.Get("Location"), "/login?token="))

	s.loginAndDecide(t, payment.Token, "confirm")

	require.Equal(t, merchant.PaymentStatusSucceeded, s.payment(t, payment.Token).Status)

	record, err := s.issuer.Service.GetTransaction(payment.Token)
	require.NoError(t, err)
	require.Equal(t, "CONFIRMED", string(record.Status))
}

func TestPaymentFlow_Cancel(t *testing.T) {
	s := startSystem(t)

	_, payment := s.checkout(t, "1234123412341234")
	s.loginAndDecide(t, payment.Token, "cancel")

	require.Equal(t, merchant.PaymentStatusDeclined, s.payment(t, payment.Token).Status)
}

func TestPaymentFlow_UnknownCard(t *testing.T) {
	s := startSystem(t)

	status, payment := s.checkout(t, "9999999999999999")
	require.Equal(t, http.StatusUnprocessableEntity, status)
	require.Equal(t, merchant.PaymentStatusFailed, payment.Status)
	require.Equal(t, "UNKNOWN_CARD", payment.ErrorCode)

	_, err := s.issuer.Service.GetTransaction(payment.Token)
	require.ErrorIs(t, err, issuer.ErrNotFound)
}

func TestPaymentFlow_UnsupportedIssuer(t *testing.T) {
	s := startSystem(t)

	status, payment := s.checkout(t, "5555555555554444")
	require.Equal(t, http.StatusUnprocessableEntity, status)
	require.Equal(t, "UNSUPPORTED_ISSUER", payment.ErrorCode)
}

func TestGateway_ErrorLineOnTheWire(t *testing.T) {
	s := startSystem(t)

	body, err := json.Marshal(map[string]string{"token": "", "cardNumber": "1234123412341234"})
	require.NoError(t, err)
	resp, err := s.client.Post("http://"+s.gateway.Addr+"/initiate-payment", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var line bytes.Buffer
	_, err = line.ReadFrom(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "ERROR:MISSING_FIELD\n", line.String())
}
