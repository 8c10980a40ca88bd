package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"golang.org/x/sync/errgroup"

	"wallet-service/internal/config"
	"wallet-service/internal/server"
)

const (
	knownOwner   = "10"
	unknownOwner = "404"
	validToken   = "integration-token"
)

type IntegrationTestSuite struct {
	suite.Suite
	postgresContainer *postgres.PostgresContainer
	identityServer    *httptest.Server
	serverInstance    *server.Server
	baseURL           string
	client            *http.Client

	accountID     string
	accountNumber string
}

func (suite *IntegrationTestSuite) SetupSuite() {
	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("wallet"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("password"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		suite.T().Fatalf("Failed to start postgres container: %s", err)
	}
	suite.postgresContainer = postgresContainer

	host, err := postgresContainer.Host(ctx)
	if err != nil {
		suite.T().Fatalf("Failed to get container host: %s", err)
	}
	port, err := postgresContainer.MappedPort(ctx, "5432/tcp")
	if err != nil {
		suite.T().Fatalf("Failed to get mapped port: %s", err)
	}

	suite.identityServer = httptest.NewServer(http.HandlerFunc(fakeIdentityService))

	cfg := &config.Config{
		DBDriver:                   config.DBDriverPGX,
		DBHost:                     host,
		DBPort:                     port.Port(),
		DBUser:                     "postgres",
		DBPassword:                 "password",
		DBName:                     "wallet",
		DBSSLMode:                  "disable",
		ServerPort:                 "0", // Let OS choose a free port
		StoreDriver:                config.StoreDriverPostgres,
		IdentityBaseURL:            suite.identityServer.URL,
		IdentityTimeout:            2 * time.Second,
		IdentityBreakerThreshold:   5,
		IdentityBreakerOpenTimeout: time.Second,
		ConflictRetries:            3,
	}

	serverInstance, serverPort, err := server.StartServer(cfg)
	if err != nil {
		suite.T().Fatalf("Failed to start application server: %s", err)
	}
	suite.serverInstance = serverInstance
	suite.baseURL = "http://localhost:" + serverPort
	suite.client = &http.Client{Timeout: 30 * time.Second}

	if err := suite.waitForServerReady(); err != nil {
		suite.T().Fatal(err)
	}
}

// fakeIdentityService knows owner 10 and accepts a single bearer token.
func fakeIdentityService(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+validToken {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	switch strings.TrimPrefix(r.URL.Path, "/api/v1/users/") {
	case knownOwner:
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":%s}`, knownOwner)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (suite *IntegrationTestSuite) waitForServerReady() error {
	timeout := 30 * time.Second
	start := time.Now()

	for time.Since(start) < timeout {
		resp, err := http.Get(suite.baseURL + "/health")
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			return nil
		}
		if resp != nil {
			resp.Body.Close()
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server not ready after %v", timeout)
}

func (suite *IntegrationTestSuite) TearDownSuite() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if suite.serverInstance != nil {
		suite.serverInstance.Stop(ctx)
	}
	if suite.identityServer != nil {
		suite.identityServer.Close()
	}
	if suite.postgresContainer != nil {
		testcontainers.TerminateContainer(suite.postgresContainer)
	}
}

type apiResponse struct {
	Data  map[string]interface{} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details string `json:"details"`
	} `json:"error"`
}

func (suite *IntegrationTestSuite) call(method, path, token string, body interface{}) (int, string) {
	var reader io.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, suite.baseURL+path, reader)
	suite.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := suite.client.Do(req)
	suite.Require().NoError(err)
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(respBody)
}

func (suite *IntegrationTestSuite) parseResponse(body string) apiResponse {
	var response apiResponse
	if err := json.Unmarshal([]byte(body), &response); err != nil {
		suite.T().Fatalf("Failed to parse response %q: %s", body, err)
	}
	return response
}

func (suite *IntegrationTestSuite) assertDecimalEqual(expected string, actual interface{}) {
	actualDec, err := decimal.NewFromString(fmt.Sprint(actual))
	if err != nil {
		suite.T().Fatalf("Invalid actual decimal: %v", actual)
	}
	assert.True(suite.T(), decimal.RequireFromString(expected).Equal(actualDec),
		"Decimal values not equal: expected %s, got %s", expected, actual)
}

func (suite *IntegrationTestSuite) assertErrorCode(status int, body string, wantStatus int, wantCode string) {
	assert.Equal(suite.T(), wantStatus, status, body)
	response := suite.parseResponse(body)
	if assert.NotNil(suite.T(), response.Error, body) {
		assert.Equal(suite.T(), wantCode, response.Error.Code)
	}
}

// ------------------------------------------------------------------
// Steps below are helpers (non-test methods). They run in the order
// TestFlow invokes them and share the account created early on.
// ------------------------------------------------------------------

func (suite *IntegrationTestSuite) stepHealthCheck() {
	status, body := suite.call(http.MethodGet, "/health", "", nil)
	assert.Equal(suite.T(), http.StatusOK, status)

	var healthResp map[string]interface{}
	assert.NoError(suite.T(), json.Unmarshal([]byte(body), &healthResp))
	assert.Equal(suite.T(), "healthy", healthResp["status"])
}

func (suite *IntegrationTestSuite) stepCreateAccountUnknownOwner() {
	status, body := suite.call(http.MethodPost, "/accounts", validToken,
		map[string]interface{}{"ownerId": 404, "accountType": "CHECKING"})
	suite.assertErrorCode(status, body, http.StatusNotFound, "owner_not_found")

	status, body = suite.call(http.MethodGet, "/accounts?ownerId="+unknownOwner, validToken, nil)
	suite.assertErrorCode(status, body, http.StatusNotFound, "owner_not_found")
}

func (suite *IntegrationTestSuite) stepCreateAccountRejectedCredential() {
	status, body := suite.call(http.MethodPost, "/accounts", "forged",
		map[string]interface{}{"ownerId": 10, "accountType": "CHECKING"})
	suite.assertErrorCode(status, body, http.StatusForbidden, "access_denied")

	status, body = suite.call(http.MethodPost, "/accounts", "",
		map[string]interface{}{"ownerId": 10, "accountType": "CHECKING"})
	suite.assertErrorCode(status, body, http.StatusUnauthorized, "unauthorized")
}

func (suite *IntegrationTestSuite) stepCreateAccount() {
	status, body := suite.call(http.MethodPost, "/accounts", validToken,
		map[string]interface{}{"ownerId": 10, "accountType": "CHECKING"})
	suite.T().Logf("Create Account Response: %s", body)
	suite.Require().Equal(http.StatusCreated, status)

	response := suite.parseResponse(body)
	suite.Require().NotNil(response.Data)
	suite.assertDecimalEqual("0", response.Data["balance"])
	assert.Regexp(suite.T(), `^ACC-\d{10}$`, response.Data["accountNumber"])
	assert.Equal(suite.T(), true, response.Data["active"])

	suite.accountID = response.Data["id"].(string)
	suite.accountNumber = response.Data["accountNumber"].(string)
}

func (suite *IntegrationTestSuite) stepDepositAndWithdraw() {
	base := "/accounts/" + suite.accountID

	status, body := suite.call(http.MethodPut, base+"/deposit", "", map[string]string{"amount": "150.75"})
	suite.Require().Equal(http.StatusOK, status, body)
	suite.assertDecimalEqual("150.75", suite.parseResponse(body).Data["balance"])

	status, body = suite.call(http.MethodPut, base+"/withdraw", "", map[string]string{"amount": "50.75"})
	suite.Require().Equal(http.StatusOK, status, body)
	suite.assertDecimalEqual("100.00", suite.parseResponse(body).Data["balance"])
}

func (suite *IntegrationTestSuite) stepInsufficientFunds() {
	status, body := suite.call(http.MethodPut, "/accounts/"+suite.accountID+"/withdraw", "",
		map[string]string{"amount": "200"})
	suite.assertErrorCode(status, body, http.StatusBadRequest, "insufficient_funds")

	status, body = suite.call(http.MethodGet, "/accounts/"+suite.accountID+"/balance", "", nil)
	suite.Require().Equal(http.StatusOK, status)
	response := suite.parseResponse(body)
	suite.assertDecimalEqual("100.00", response.Data["balance"])
	assert.Equal(suite.T(), suite.accountNumber, response.Data["accountNumber"])
}

func (suite *IntegrationTestSuite) stepInvalidAmounts() {
	for _, amount := range []string{"0", "-10", "abc", "0.001"} {
		status, body := suite.call(http.MethodPut, "/accounts/"+suite.accountID+"/deposit", "",
			map[string]string{"amount": amount})
		suite.assertErrorCode(status, body, http.StatusBadRequest, "invalid_amount")
	}
}

func (suite *IntegrationTestSuite) stepConcurrentUpdates() {
	base := "/accounts/" + suite.accountID

	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			status, body := suite.call(http.MethodPut, base+"/deposit", "", map[string]string{"amount": "10"})
			if status != http.StatusOK {
				return fmt.Errorf("deposit: %d %s", status, body)
			}
			return nil
		})
		g.Go(func() error {
			status, body := suite.call(http.MethodPut, base+"/withdraw", "", map[string]string{"amount": "10"})
			if status != http.StatusOK {
				return fmt.Errorf("withdraw: %d %s", status, body)
			}
			return nil
		})
	}
	suite.Require().NoError(g.Wait())

	_, body := suite.call(http.MethodGet, base+"/balance", "", nil)
	suite.assertDecimalEqual("100.00", suite.parseResponse(body).Data["balance"])
}

func (suite *IntegrationTestSuite) stepGetAccount() {
	status, body := suite.call(http.MethodGet, "/accounts/"+suite.accountID, "", nil)
	suite.Require().Equal(http.StatusOK, status)
	response := suite.parseResponse(body)
	assert.Equal(suite.T(), suite.accountID, response.Data["id"])
	assert.EqualValues(suite.T(), 10, response.Data["ownerId"])

	status, body = suite.call(http.MethodGet, "/accounts/not-a-uuid", "", nil)
	suite.assertErrorCode(status, body, http.StatusBadRequest, "invalid_account_id")

	status, body = suite.call(http.MethodGet, "/accounts/00000000-0000-0000-0000-000000000001", "", nil)
	suite.assertErrorCode(status, body, http.StatusNotFound, "account_not_found")
}

func (suite *IntegrationTestSuite) stepListAccounts() {
	status, body := suite.call(http.MethodGet, "/accounts?ownerId="+knownOwner, validToken, nil)
	suite.Require().Equal(http.StatusOK, status, body)

	var response struct {
		Data []map[string]interface{} `json:"data"`
	}
	suite.Require().NoError(json.Unmarshal([]byte(body), &response))
	suite.Require().Len(response.Data, 1)
	assert.Equal(suite.T(), suite.accountID, response.Data[0]["id"])
	assert.NotContains(suite.T(), response.Data[0], "balance")
}

func (suite *IntegrationTestSuite) stepMetricsExposed() {
	status, body := suite.call(http.MethodGet, "/metrics", "", nil)
	assert.Equal(suite.T(), http.StatusOK, status)
	assert.Contains(suite.T(), body, "wallet_service_ledger_operations_total")
	assert.Contains(suite.T(), body, "wallet_service_http_requests_total")
}

func (suite *IntegrationTestSuite) TestFlow() {
	if testing.Short() {
		suite.T().Skip("Skipping integration test in short mode")
	}

	suite.stepHealthCheck()
	suite.stepCreateAccountUnknownOwner()
	suite.stepCreateAccountRejectedCredential()
	suite.stepCreateAccount()
	suite.stepDepositAndWithdraw()
	suite.stepInsufficientFunds()
	suite.stepInvalidAmounts()
	suite.stepConcurrentUpdates()
	suite.stepGetAccount()
	suite.stepListAccounts()
	suite.stepMetricsExposed()
}

func TestIntegrationTestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	suite.Run(t, new(IntegrationTestSuite))
}
